package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/detsim/pkg/fuzz"
	"github.com/jihwankim/detsim/pkg/reporting"
)

var fuzzCmd = &cobra.Command{
	Use:   "fuzz",
	Args:  cobra.NoArgs,
	Short: "Sweep a scenario across many seeds",
	Long: `Fuzz runs the same scenario under a sequence of seeds derived from a
master seed, hunting for invariant violations. With --randomize-network
the fault parameters are additionally resampled every round from
near-threshold distributions. Any violating seed is reported. Without
--randomize-network it can be replayed exactly with 'run --seed'; with it,
'run --seed' uses the scenario's own network parameters, not the
resampled ones, while the whole sweep reproduces from its master seed.

Examples:
  sim-runner fuzz --scenario scenarios/echo.yaml
  sim-runner fuzz --scenario scenarios/echo.yaml --rounds 100 --master-seed 42
  sim-runner fuzz --scenario scenarios/echo.yaml --randomize-network --stop-on-failure`,
	RunE: runFuzz,
}

func init() {
	fuzzCmd.Flags().String("scenario", "", "path to scenario YAML file")
	fuzzCmd.Flags().StringArray("set", []string{}, "override scenario values (e.g., --set workload.retries=true)")
	fuzzCmd.Flags().Int("rounds", 10, "number of seeds to try")
	fuzzCmd.Flags().Int64("master-seed", 1, "master seed the per-round seeds derive from")
	fuzzCmd.Flags().Bool("stop-on-failure", false, "stop at the first invariant violation")
	fuzzCmd.Flags().Bool("randomize-network", false, "resample network fault parameters every round")
	fuzzCmd.Flags().String("format", "text", "log format (text, json)")
	fuzzCmd.Flags().String("output-dir", "./reports", "directory for run reports")
	fuzzCmd.Flags().Int("keep-last", 0, "run reports to keep (0 = keep all)")
}

func runFuzz(cmd *cobra.Command, _ []string) error {
	scenarioPath, _ := cmd.Flags().GetString("scenario")
	if scenarioPath == "" {
		return fmt.Errorf("--scenario flag is required")
	}
	setFlags, _ := cmd.Flags().GetStringArray("set")
	rounds, _ := cmd.Flags().GetInt("rounds")
	masterSeed, _ := cmd.Flags().GetInt64("master-seed")
	stopOnFailure, _ := cmd.Flags().GetBool("stop-on-failure")
	randomizeNetwork, _ := cmd.Flags().GetBool("randomize-network")
	outputFormat, _ := cmd.Flags().GetString("format")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	keepLast, _ := cmd.Flags().GetInt("keep-last")

	logger := newRunnerLogger(outputFormat)

	s, warnings, err := loadScenario(scenarioPath, setFlags)
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		logger.Warn().Msg(warning)
	}

	storage, err := reporting.NewStorage(outputDir, keepLast, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	// Per-round seeds and fault parameters derive deterministically from
	// the master seed, so a whole sweep is reproducible.
	sampler := fuzz.NewSampler(masterSeed)

	var completed, timedOut, violated int

	logger.Info().
		Str("scenario", s.Metadata.Name).
		Int("rounds", rounds).
		Int64("master_seed", masterSeed).
		Msg("starting fuzz sweep")

	for round := 0; round < rounds; round++ {
		seed := sampler.Seed()

		cfg := s.Configuration()
		cfg.Seed = seed
		if randomizeNetwork {
			cfg.Network = sampler.SampleNetworkConfig(cfg.Network)
		}

		roundLogger := logger.ForRun(s.Metadata.Name, seed)

		wallStart := time.Now()
		res, err := runSimulation(cfg, s.Workload(), roundLogger)
		if err != nil {
			return err
		}

		report := &reporting.RunReport{
			RunID:           fmt.Sprintf("%s-fuzz%d-seed%d", s.Metadata.Name, round, seed),
			ScenarioName:    s.Metadata.Name,
			Seed:            seed,
			StartTime:       wallStart,
			WallDuration:    time.Since(wallStart).String(),
			Status:          res.status(),
			Completed:       res.completed,
			VirtualElapsed:  res.elapsed.String(),
			EventsProcessed: res.events,
			MessagesSent:    res.messages,
		}
		if res.invariantErr != nil {
			report.Message = res.invariantErr.Error()
		}
		if _, err := storage.SaveReport(report); err != nil {
			roundLogger.Error().Err(err).Msg("could not save run report")
		}

		switch {
		case res.invariantErr != nil:
			violated++
			roundLogger.Error().Int("round", round).Err(res.invariantErr).Msg("invariant violated")
			if stopOnFailure {
				return fmt.Errorf("invariant violated at round %d; replay with --seed %d", round, seed)
			}
		case res.completed:
			completed++
			roundLogger.Info().Int("round", round).Dur("virtual_elapsed", res.elapsed).Msg("round completed")
		default:
			timedOut++
			roundLogger.Warn().Int("round", round).Msg("round timed out")
		}
	}

	logger.Info().
		Int("rounds", rounds).
		Int("completed", completed).
		Int("timed_out", timedOut).
		Int("violations", violated).
		Msg("fuzz sweep finished")

	if violated > 0 {
		// The stored reports are the source of truth for replay seeds;
		// earlier sweeps against the same scenario are included.
		seeds, err := storage.ViolationSeeds(s.Metadata.Name)
		if err != nil {
			return fmt.Errorf("%d invariant violations (listing seeds failed: %v)", violated, err)
		}
		return fmt.Errorf("%d invariant violations; replay seeds: %v", violated, seeds)
	}
	return nil
}
