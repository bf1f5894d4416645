package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jihwankim/detsim/pkg/config"
	"github.com/jihwankim/detsim/pkg/echo"
	"github.com/jihwankim/detsim/pkg/metrics"
	"github.com/jihwankim/detsim/pkg/reporting"
	"github.com/jihwankim/detsim/pkg/scenario"
	"github.com/jihwankim/detsim/pkg/scenario/parser"
	"github.com/jihwankim/detsim/pkg/scenario/validator"
	"github.com/jihwankim/detsim/pkg/sim"
)

// newRunnerLogger builds the structured logger shared by the runner and
// the engine.
func newRunnerLogger(format string) *reporting.Logger {
	logLevel := reporting.LogLevelInfo
	if verbose {
		logLevel = reporting.LogLevelDebug
	}
	return reporting.NewLogger(reporting.LoggerConfig{
		Level:  logLevel,
		Format: reporting.LogFormat(format),
		Output: os.Stdout,
	})
}

// loadScenario parses a scenario file, applies --set overrides and
// validates it. Validation warnings are returned for the caller to log.
func loadScenario(path string, setFlags []string) (*scenario.Scenario, []string, error) {
	p := parser.New(nil)
	s, err := p.ParseFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	if len(setFlags) > 0 {
		if err := parser.ApplyOverrides(s, parseSetFlags(setFlags)); err != nil {
			return nil, nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	v := validator.New()
	if err := v.Validate(s); err != nil {
		return nil, nil, fmt.Errorf("scenario validation failed:\n%s", v.GetReport())
	}

	return s, v.Warnings, nil
}

// parseSetFlags converts --set key=value pairs into a map
func parseSetFlags(setFlags []string) map[string]string {
	overrides := make(map[string]string, len(setFlags))
	for _, flag := range setFlags {
		key, value, found := strings.Cut(flag, "=")
		if !found {
			continue
		}
		overrides[key] = value
	}
	return overrides
}

// runResult captures the outcome of one seeded simulation run.
type runResult struct {
	completed    bool
	elapsed      time.Duration
	events       int
	messages     int
	metricsText  string
	invariantErr error
}

func (r runResult) status() reporting.RunStatus {
	switch {
	case r.invariantErr != nil:
		return reporting.StatusInvariantViolated
	case r.completed:
		return reporting.StatusCompleted
	default:
		return reporting.StatusTimedOut
	}
}

// runSimulation executes one seeded echo-workload run. An invariant
// violation (the checker panics) is converted into runResult.invariantErr
// so a seed sweep can keep going.
func runSimulation(cfg config.Configuration, w scenario.WorkloadSpec, logger *reporting.Logger) (runResult, error) {
	var res runResult
	m := metrics.New()

	servers := make([]*echo.Server, w.Servers)
	for i := range servers {
		servers[i] = echo.NewServer(i)
	}
	clients := make([]*echo.Client, w.Clients)
	for i := range clients {
		clients[i] = echo.NewClient(i, w.Requests, w.RetryInterval.Std(), w.Retries)
	}

	// The simulation clock is virtual; any fixed origin works.
	start := time.Unix(0, 0).UTC()

	simulator, err := sim.New[echo.Message](start, servers, clients, cfg, echo.Checker{},
		sim.WithLogger(logger.Logger),
		sim.WithMetrics(m))
	if err != nil {
		return res, fmt.Errorf("failed to build simulator: %w", err)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.invariantErr = fmt.Errorf("%v", r)
			}
		}()
		res.completed = simulator.Run()
	}()

	res.elapsed = simulator.Elapsed()
	res.events = simulator.EventsProcessed()
	res.messages = simulator.MessagesSent()
	if text, renderErr := m.Render(); renderErr == nil {
		res.metricsText = text
	} else {
		logger.Warn().Err(renderErr).Msg("could not render metrics")
	}

	return res, nil
}
