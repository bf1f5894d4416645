// Package config defines the simulation run configuration: virtual-time
// pacing, the RNG seed, invariant-check cadence, and the nested network
// and node-failure fault models.
package config

import (
	"fmt"
	"time"

	"github.com/jihwankim/detsim/pkg/network"
)

// Configuration is the full engine configuration. It is validated once at
// simulator construction and never mutated during a run.
type Configuration struct {
	// TickInterval is the period of the self-scheduling tick event.
	TickInterval time.Duration `yaml:"tick_interval"`

	// MaxSimTime is the virtual-time budget. A run whose elapsed time
	// exceeds it returns false.
	MaxSimTime time.Duration `yaml:"max_sim_time"`

	// Seed drives every stochastic decision of the run.
	Seed uint64 `yaml:"seed"`

	// CheckInvariantsFrequency is the stride, in processed events, between
	// invariant checker invocations.
	CheckInvariantsFrequency int `yaml:"check_invariants_frequency"`

	Network network.Config       `yaml:"network"`
	Failure FailureConfiguration `yaml:"failure"`
}

// FailureConfiguration controls the server crash model. A zero
// MeanTimeBetweenFailures disables crashes.
type FailureConfiguration struct {
	MeanTimeBetweenFailures time.Duration `yaml:"mean_time_between_failures"`

	// MeanTimeToRecover is recognized but currently unused: recovery
	// durations are drawn from MeanTimeBetweenFailures.
	MeanTimeToRecover time.Duration `yaml:"mean_time_to_recover"`
}

// FailuresEnabled reports whether servers ever crash under this config.
func (f FailureConfiguration) FailuresEnabled() bool {
	return f.MeanTimeBetweenFailures > 0
}

// Default returns the stock configuration: 50ms ticks, a 10s budget,
// seed 1, invariants checked on every event, the default unreliable
// network, and node crashes roughly every three seconds.
func Default() Configuration {
	return Configuration{
		TickInterval:             50 * time.Millisecond,
		MaxSimTime:               10 * time.Second,
		Seed:                     1,
		CheckInvariantsFrequency: 1,
		Network:                  network.DefaultConfig(),
		Failure: FailureConfiguration{
			MeanTimeBetweenFailures: 3000 * time.Millisecond,
			MeanTimeToRecover:       2000 * time.Millisecond,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Configuration) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.MaxSimTime <= 0 {
		return fmt.Errorf("max_sim_time must be positive, got %s", c.MaxSimTime)
	}
	if c.CheckInvariantsFrequency < 1 {
		return fmt.Errorf("check_invariants_frequency must be at least 1, got %d",
			c.CheckInvariantsFrequency)
	}
	if c.Failure.MeanTimeBetweenFailures < 0 {
		return fmt.Errorf("mean_time_between_failures must not be negative, got %s",
			c.Failure.MeanTimeBetweenFailures)
	}
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network config: %w", err)
	}
	return nil
}
