package network

import (
	"fmt"
	"time"
)

// Config controls the adversarial network model: message latency,
// duplication, per-link transient failures and whole-network partitions.
// A zero mean-time-between duration disables the corresponding fault.
// Config is copied by value into the Network at construction and never
// mutated afterwards.
type Config struct {
	// MinMessageLatency and MaxMessageLatency clamp every sampled delivery
	// delay.
	MinMessageLatency time.Duration `yaml:"min_message_latency"`
	MaxMessageLatency time.Duration `yaml:"max_message_latency"`

	// LatencyRate is the rate of the exponential distribution producing the
	// per-message delay multiplier.
	LatencyRate float64 `yaml:"latency_rate"`

	// DuplicateProbability is the per-send chance of emitting a second copy.
	DuplicateProbability float64 `yaml:"duplicate_probability"`

	// HoldProbability decides, when a link fails, whether it holds messages
	// for later release instead of dropping them.
	HoldProbability float64 `yaml:"hold_probability"`

	// MeanTimeBetweenLinkFailures enables transient link failures when
	// non-zero.
	MeanTimeBetweenLinkFailures time.Duration `yaml:"mean_time_between_link_failures"`

	// MeanLinkRecoveryTime is the mean outage duration of a failed link.
	MeanLinkRecoveryTime time.Duration `yaml:"mean_link_recovery_time"`

	// MeanTimeBetweenPartitions enables network partitions when non-zero.
	MeanTimeBetweenPartitions time.Duration `yaml:"mean_time_between_partitions"`

	// MeanPartitionRecoveryTime is the mean duration of a partition.
	MeanPartitionRecoveryTime time.Duration `yaml:"mean_partition_recovery_time"`
}

// DefaultConfig returns the stock unreliable network: latency up to 100ms,
// 10% duplicates, link failures roughly every second holding messages 30%
// of the time, and partitions roughly every four seconds.
func DefaultConfig() Config {
	return Config{
		MinMessageLatency:           0,
		MaxMessageLatency:           100 * time.Millisecond,
		LatencyRate:                 5.0,
		DuplicateProbability:        0.1,
		HoldProbability:             0.3,
		MeanTimeBetweenLinkFailures: 1000 * time.Millisecond,
		MeanLinkRecoveryTime:        300 * time.Millisecond,
		MeanTimeBetweenPartitions:   4000 * time.Millisecond,
		MeanPartitionRecoveryTime:   1000 * time.Millisecond,
	}
}

// Validate rejects configurations the fault model cannot run with. Fault
// means may be zero only when the fault itself is disabled.
func (c Config) Validate() error {
	if c.MinMessageLatency < 0 {
		return fmt.Errorf("min_message_latency must not be negative, got %s", c.MinMessageLatency)
	}
	if c.MaxMessageLatency < c.MinMessageLatency {
		return fmt.Errorf("max_message_latency %s is below min_message_latency %s",
			c.MaxMessageLatency, c.MinMessageLatency)
	}
	if c.LatencyRate <= 0 {
		return fmt.Errorf("latency_rate must be positive, got %v", c.LatencyRate)
	}
	if c.DuplicateProbability < 0 || c.DuplicateProbability > 1 {
		return fmt.Errorf("duplicate_probability must be in [0, 1], got %v", c.DuplicateProbability)
	}
	if c.HoldProbability < 0 || c.HoldProbability > 1 {
		return fmt.Errorf("hold_probability must be in [0, 1], got %v", c.HoldProbability)
	}
	if c.MeanTimeBetweenLinkFailures < 0 {
		return fmt.Errorf("mean_time_between_link_failures must not be negative, got %s",
			c.MeanTimeBetweenLinkFailures)
	}
	if c.MeanTimeBetweenLinkFailures > 0 && c.MeanLinkRecoveryTime <= 0 {
		return fmt.Errorf("mean_link_recovery_time must be positive when link failures are enabled")
	}
	if c.MeanTimeBetweenPartitions < 0 {
		return fmt.Errorf("mean_time_between_partitions must not be negative, got %s",
			c.MeanTimeBetweenPartitions)
	}
	if c.MeanTimeBetweenPartitions > 0 && c.MeanPartitionRecoveryTime <= 0 {
		return fmt.Errorf("mean_partition_recovery_time must be positive when partitions are enabled")
	}
	return nil
}

// LinkFailuresEnabled reports whether links ever fail under this config.
func (c Config) LinkFailuresEnabled() bool {
	return c.MeanTimeBetweenLinkFailures > 0
}

// PartitionsEnabled reports whether network partitions ever occur under
// this config.
func (c Config) PartitionsEnabled() bool {
	return c.MeanTimeBetweenPartitions > 0
}
