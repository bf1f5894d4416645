package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/detsim/pkg/reporting"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Execute a simulation scenario",
	Long:  `Loads a scenario YAML file, runs the simulation and saves a run report.`,
	RunE:  runScenario,
}

func init() {
	runCmd.Flags().String("scenario", "", "path to scenario YAML file")
	runCmd.Flags().StringArray("set", []string{}, "override scenario values (e.g., --set seed=7)")
	runCmd.Flags().Uint64("seed", 0, "seed override (0 = use scenario seed)")
	runCmd.Flags().String("format", "text", "log format (text, json)")
	runCmd.Flags().String("output-dir", "./reports", "directory for run reports")
	runCmd.Flags().Int("keep-last", 50, "run reports to keep (0 = keep all)")
	runCmd.Flags().Bool("dry-run", false, "validate scenario without executing")
	runCmd.Flags().Bool("print-metrics", false, "print run counters in prometheus text format")
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenarioPath, _ := cmd.Flags().GetString("scenario")
	if scenarioPath == "" {
		return fmt.Errorf("--scenario flag is required")
	}
	setFlags, _ := cmd.Flags().GetStringArray("set")
	seedFlag, _ := cmd.Flags().GetUint64("seed")
	outputFormat, _ := cmd.Flags().GetString("format")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	keepLast, _ := cmd.Flags().GetInt("keep-last")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	printMetrics, _ := cmd.Flags().GetBool("print-metrics")

	logger := newRunnerLogger(outputFormat)
	logger.Info().Str("version", version).Msg("sim runner starting")

	logger.Info().Str("file", scenarioPath).Msg("parsing scenario")
	s, warnings, err := loadScenario(scenarioPath, setFlags)
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		logger.Warn().Msg(warning)
	}
	logger.Info().Str("name", s.Metadata.Name).Msg("scenario validated")

	if dryRun {
		fmt.Println("Scenario is valid (dry-run mode)")
		return nil
	}

	cfg := s.Configuration()
	if seedFlag != 0 {
		cfg.Seed = seedFlag
	}

	storage, err := reporting.NewStorage(outputDir, keepLast, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	// Engine lines inherit the scenario and seed, so any logged fault
	// transition can be replayed with `run --seed`.
	runLogger := logger.ForRun(s.Metadata.Name, cfg.Seed)
	runLogger.Info().
		Dur("max_sim_time", cfg.MaxSimTime).
		Msg("running simulation")

	wallStart := time.Now()
	res, err := runSimulation(cfg, s.Workload(), runLogger)
	if err != nil {
		return err
	}

	report := &reporting.RunReport{
		RunID:           fmt.Sprintf("%s-seed%d", s.Metadata.Name, cfg.Seed),
		ScenarioName:    s.Metadata.Name,
		Seed:            cfg.Seed,
		StartTime:       wallStart,
		WallDuration:    time.Since(wallStart).String(),
		Status:          res.status(),
		Completed:       res.completed,
		VirtualElapsed:  res.elapsed.String(),
		EventsProcessed: res.events,
		MessagesSent:    res.messages,
		Metrics:         res.metricsText,
	}
	if res.invariantErr != nil {
		report.Message = res.invariantErr.Error()
	}

	if _, err := storage.SaveReport(report); err != nil {
		logger.Error().Err(err).Msg("could not save run report")
	}

	fmt.Print(reporting.NewFormatter(logger).FormatSummary(report))
	if printMetrics {
		fmt.Print(res.metricsText)
	}

	switch {
	case res.invariantErr != nil:
		return fmt.Errorf("invariant violated (seed %d): %w", cfg.Seed, res.invariantErr)
	case !res.completed:
		return fmt.Errorf("clients did not finish within %s (seed %d)", cfg.MaxSimTime, cfg.Seed)
	default:
		runLogger.Info().
			Dur("virtual_elapsed", res.elapsed).
			Int("events", res.events).
			Int("messages", res.messages).
			Msg("simulation completed")
		return nil
	}
}
