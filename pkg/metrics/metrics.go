// Package metrics collects counters about a simulation run on a private
// prometheus registry. Counting is observation only: nothing in the engine
// reads a counter back, so metrics can never perturb scheduling or
// determinism.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Drop reasons used as the label of MessagesDropped.
const (
	DropReasonPartition = "partition"
	DropReasonLinkDown  = "link_down"
	DropReasonNodeDown  = "node_down"
)

// Metrics holds the run counters. All fields are registered on a registry
// owned by this struct, so several simulators can run in one process
// without label collisions.
type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed   prometheus.Counter
	MessagesSent      prometheus.Counter
	Deliveries        prometheus.Counter
	DuplicatesEmitted prometheus.Counter
	MessagesHeld      prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	LinkFailures      prometheus.Counter
	LinkRecoveries    prometheus.Counter
	PartitionsStarted prometheus.Counter
	PartitionsEnded   prometheus.Counter
	NodeCrashes       prometheus.Counter
	NodeRestarts      prometheus.Counter
	InvariantChecks   prometheus.Counter
}

// New creates a Metrics with all counters registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_events_processed_total",
			Help: "Events popped from the simulation queue, including the final event that ends the run undispatched.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_messages_sent_total",
			Help: "Protocol messages handed to the network.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_deliveries_scheduled_total",
			Help: "Delivery events scheduled by the network (duplicates included).",
		}),
		DuplicatesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_duplicates_emitted_total",
			Help: "Extra message copies produced by link duplication.",
		}),
		MessagesHeld: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_messages_held_total",
			Help: "Messages queued on a link in hold state.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detsim_messages_dropped_total",
			Help: "Messages lost to the fault model, by reason.",
		}, []string{"reason"}),
		LinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_link_failures_total",
			Help: "Link transitions into a transient failure state.",
		}),
		LinkRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_link_recoveries_total",
			Help: "Link transitions back to the up state.",
		}),
		PartitionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_partitions_started_total",
			Help: "Network partition windows opened.",
		}),
		PartitionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_partitions_ended_total",
			Help: "Network partition windows closed.",
		}),
		NodeCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_node_crashes_total",
			Help: "Server wrapper transitions into the failed state.",
		}),
		NodeRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_node_restarts_total",
			Help: "Server wrapper recoveries back to normal.",
		}),
		InvariantChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detsim_invariant_checks_total",
			Help: "Invariant checker invocations.",
		}),
	}

	m.registry.MustRegister(
		m.EventsProcessed, m.MessagesSent, m.Deliveries, m.DuplicatesEmitted,
		m.MessagesHeld, m.MessagesDropped, m.LinkFailures, m.LinkRecoveries,
		m.PartitionsStarted, m.PartitionsEnded, m.NodeCrashes, m.NodeRestarts,
		m.InvariantChecks,
	)
	return m
}

// Registry returns the registry backing the counters, for callers that
// want to plug the run into their own scrape surface.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Render gathers all metric families and returns them in the prometheus
// text exposition format.
func (m *Metrics) Render() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}
	var sb strings.Builder
	for _, fam := range families {
		if _, err := expfmt.MetricFamilyToText(&sb, fam); err != nil {
			return "", fmt.Errorf("render metric family %s: %w", fam.GetName(), err)
		}
	}
	return sb.String(), nil
}
