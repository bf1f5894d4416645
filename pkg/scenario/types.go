// Package scenario defines the YAML simulation scenario document: a
// seed, virtual-time pacing, the network and node fault models, and the
// workload to drive. A scenario maps onto an engine configuration via
// Configuration.
package scenario

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/detsim/pkg/config"
)

// Scenario represents a complete simulation scenario
type Scenario struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

// Metadata contains scenario metadata
type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Author      string   `yaml:"author,omitempty"`
	Version     string   `yaml:"version,omitempty"`
}

// Spec defines the simulation specification. Zero-valued fields fall back
// to the engine defaults; pointer fields distinguish "unset" from an
// explicit zero, which disables the corresponding fault.
type Spec struct {
	// Seed drives every stochastic decision of the run.
	Seed uint64 `yaml:"seed"`

	// TickInterval is the period of the recurring tick event.
	TickInterval Duration `yaml:"tick_interval,omitempty"`

	// MaxSimTime is the virtual-time budget.
	MaxSimTime Duration `yaml:"max_sim_time,omitempty"`

	// CheckInvariantsFrequency is the invariant check stride in events.
	CheckInvariantsFrequency int `yaml:"check_invariants_frequency,omitempty"`

	Network  NetworkSpec  `yaml:"network,omitempty"`
	Failure  FailureSpec  `yaml:"failure,omitempty"`
	Workload WorkloadSpec `yaml:"workload"`
}

// NetworkSpec configures the adversarial network model.
type NetworkSpec struct {
	MinMessageLatency Duration `yaml:"min_message_latency,omitempty"`
	MaxMessageLatency Duration `yaml:"max_message_latency,omitempty"`
	LatencyRate       float64  `yaml:"latency_rate,omitempty"`

	// Explicit zero disables duplication / holds; unset keeps the default.
	DuplicateProbability *float64 `yaml:"duplicate_probability,omitempty"`
	HoldProbability      *float64 `yaml:"hold_probability,omitempty"`

	// Explicit zero disables the fault; unset keeps the default.
	MeanTimeBetweenLinkFailures *Duration `yaml:"mean_time_between_link_failures,omitempty"`
	MeanTimeBetweenPartitions   *Duration `yaml:"mean_time_between_partitions,omitempty"`

	MeanLinkRecoveryTime      Duration `yaml:"mean_link_recovery_time,omitempty"`
	MeanPartitionRecoveryTime Duration `yaml:"mean_partition_recovery_time,omitempty"`
}

// FailureSpec configures the server crash model.
type FailureSpec struct {
	// Explicit zero disables crashes; unset keeps the default.
	MeanTimeBetweenFailures *Duration `yaml:"mean_time_between_failures,omitempty"`
	MeanTimeToRecover       Duration  `yaml:"mean_time_to_recover,omitempty"`
}

// WorkloadSpec describes the protocol the scenario drives.
type WorkloadSpec struct {
	// Type selects the workload; "echo" is the only built-in.
	Type string `yaml:"type"`

	Servers int `yaml:"servers,omitempty"`
	Clients int `yaml:"clients,omitempty"`

	// Requests per client.
	Requests uint64 `yaml:"requests,omitempty"`

	// Retries enables request retransmission every RetryInterval.
	Retries       bool     `yaml:"retries,omitempty"`
	RetryInterval Duration `yaml:"retry_interval,omitempty"`
}

// Duration wraps time.Duration so scenario files can say "200ms" or "30s".
// Plain integers are accepted as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// Integers first: any scalar also decodes into a string.
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}

	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	return fmt.Errorf("invalid duration %q", value.Value)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Configuration maps the scenario onto an engine configuration, filling
// unset fields from the defaults.
func (s *Scenario) Configuration() config.Configuration {
	cfg := config.Default()
	spec := s.Spec

	if spec.Seed != 0 {
		cfg.Seed = spec.Seed
	}
	if spec.TickInterval > 0 {
		cfg.TickInterval = spec.TickInterval.Std()
	}
	if spec.MaxSimTime > 0 {
		cfg.MaxSimTime = spec.MaxSimTime.Std()
	}
	if spec.CheckInvariantsFrequency > 0 {
		cfg.CheckInvariantsFrequency = spec.CheckInvariantsFrequency
	}

	net := spec.Network
	if net.MinMessageLatency > 0 {
		cfg.Network.MinMessageLatency = net.MinMessageLatency.Std()
	}
	if net.MaxMessageLatency > 0 {
		cfg.Network.MaxMessageLatency = net.MaxMessageLatency.Std()
	}
	if net.LatencyRate > 0 {
		cfg.Network.LatencyRate = net.LatencyRate
	}
	if net.DuplicateProbability != nil {
		cfg.Network.DuplicateProbability = *net.DuplicateProbability
	}
	if net.HoldProbability != nil {
		cfg.Network.HoldProbability = *net.HoldProbability
	}
	if net.MeanTimeBetweenLinkFailures != nil {
		cfg.Network.MeanTimeBetweenLinkFailures = net.MeanTimeBetweenLinkFailures.Std()
	}
	if net.MeanLinkRecoveryTime > 0 {
		cfg.Network.MeanLinkRecoveryTime = net.MeanLinkRecoveryTime.Std()
	}
	if net.MeanTimeBetweenPartitions != nil {
		cfg.Network.MeanTimeBetweenPartitions = net.MeanTimeBetweenPartitions.Std()
	}
	if net.MeanPartitionRecoveryTime > 0 {
		cfg.Network.MeanPartitionRecoveryTime = net.MeanPartitionRecoveryTime.Std()
	}

	if spec.Failure.MeanTimeBetweenFailures != nil {
		cfg.Failure.MeanTimeBetweenFailures = spec.Failure.MeanTimeBetweenFailures.Std()
	}
	if spec.Failure.MeanTimeToRecover > 0 {
		cfg.Failure.MeanTimeToRecover = spec.Failure.MeanTimeToRecover.Std()
	}

	return cfg
}

// Workload returns the workload spec with defaults applied: one server,
// one client, ten requests, 200ms retry interval.
func (s *Scenario) Workload() WorkloadSpec {
	w := s.Spec.Workload
	if w.Type == "" {
		w.Type = "echo"
	}
	if w.Servers == 0 {
		w.Servers = 1
	}
	if w.Clients == 0 {
		w.Clients = 1
	}
	if w.Requests == 0 {
		w.Requests = 10
	}
	if w.RetryInterval == 0 {
		w.RetryInterval = Duration(200 * time.Millisecond)
	}
	return w
}
