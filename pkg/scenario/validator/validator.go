// Package validator performs semantic validation of parsed simulation
// scenarios: structural errors are fatal, questionable fault parameters
// produce warnings.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jihwankim/detsim/pkg/scenario"
)

// SupportedAPIVersion is the scenario schema this build understands.
const SupportedAPIVersion = "detsim/v1"

// SupportedKind is the only document kind the runner executes.
const SupportedKind = "SimulationScenario"

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Validator validates simulation scenarios
type Validator struct {
	// Warnings are non-fatal issues
	Warnings []string

	// Errors are fatal issues
	Errors []string
}

// New creates a new validator
func New() *Validator {
	return &Validator{
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}
}

// Validate validates a scenario
func (v *Validator) Validate(s *scenario.Scenario) error {
	v.Warnings = make([]string, 0)
	v.Errors = make([]string, 0)

	v.validateHeader(s)
	v.validateMetadata(s)
	v.validateWorkload(s)
	v.validateConfiguration(s)

	if len(v.Errors) > 0 {
		return fmt.Errorf("validation failed with %d errors", len(v.Errors))
	}

	return nil
}

// HasWarnings returns true if there are warnings
func (v *Validator) HasWarnings() bool {
	return len(v.Warnings) > 0
}

// HasErrors returns true if there are errors
func (v *Validator) HasErrors() bool {
	return len(v.Errors) > 0
}

// GetReport returns a formatted validation report
func (v *Validator) GetReport() string {
	var sb strings.Builder

	if len(v.Errors) > 0 {
		sb.WriteString("ERRORS:\n")
		for _, err := range v.Errors {
			sb.WriteString(fmt.Sprintf("  - %s\n", err))
		}
	}
	if len(v.Warnings) > 0 {
		sb.WriteString("WARNINGS:\n")
		for _, warning := range v.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warning))
		}
	}
	if sb.Len() == 0 {
		sb.WriteString("Scenario is valid\n")
	}

	return sb.String()
}

func (v *Validator) addError(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validator) addWarning(format string, args ...interface{}) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

func (v *Validator) validateHeader(s *scenario.Scenario) {
	if s.APIVersion != SupportedAPIVersion {
		v.addError("unsupported apiVersion %q, want %q", s.APIVersion, SupportedAPIVersion)
	}
	if s.Kind != SupportedKind {
		v.addError("unsupported kind %q, want %q", s.Kind, SupportedKind)
	}
}

func (v *Validator) validateMetadata(s *scenario.Scenario) {
	if s.Metadata.Name == "" {
		v.addError("metadata.name is required")
		return
	}
	if !namePattern.MatchString(s.Metadata.Name) {
		v.addError("metadata.name %q must be lowercase alphanumeric with dashes", s.Metadata.Name)
	}
}

func (v *Validator) validateWorkload(s *scenario.Scenario) {
	w := s.Workload()

	if w.Type != "echo" {
		v.addError("unsupported workload type %q; supported: echo", w.Type)
	}
	if w.Servers < 1 {
		v.addError("workload.servers must be at least 1, got %d", w.Servers)
	}
	if w.Clients < 1 {
		v.addError("workload.clients must be at least 1, got %d", w.Clients)
	}
	if w.Requests < 1 {
		v.addError("workload.requests must be at least 1, got %d", w.Requests)
	}
	if w.Retries && w.RetryInterval <= 0 {
		v.addError("workload.retry_interval must be positive when retries are enabled")
	}
	if w.Type == "echo" && w.Servers > 1 {
		v.addWarning("echo workload sends all requests to server-0; extra servers only exercise the crash model")
	}
}

func (v *Validator) validateConfiguration(s *scenario.Scenario) {
	cfg := s.Configuration()
	if err := cfg.Validate(); err != nil {
		v.addError("configuration: %v", err)
		return
	}

	if cfg.TickInterval > cfg.MaxSimTime {
		v.addWarning("tick_interval %s exceeds max_sim_time %s; only the initial tick will run",
			cfg.TickInterval, cfg.MaxSimTime)
	}
	if cfg.Network.DuplicateProbability > 0.5 {
		v.addWarning("duplicate_probability %.2f is unusually high", cfg.Network.DuplicateProbability)
	}
	if cfg.Network.LinkFailuresEnabled() &&
		cfg.Network.MeanLinkRecoveryTime > cfg.Network.MeanTimeBetweenLinkFailures {
		v.addWarning("links recover slower than they fail on average; expect mostly-dead links")
	}

	faulty := cfg.Network.LinkFailuresEnabled() || cfg.Network.PartitionsEnabled() ||
		cfg.Failure.FailuresEnabled()
	if faulty && !s.Workload().Retries {
		v.addWarning("faults are enabled but the workload does not retry; clients may never finish")
	}
}
