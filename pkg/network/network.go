// Package network implements the adversarial network model: one lazy link
// state machine per unordered node pair plus a global partition state
// machine. Routing a message produces zero or more delayed deliveries;
// loss, duplication, reordering and hold-and-release are modeled
// behaviors, never errors.
package network

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/jihwankim/detsim/pkg/metrics"
	"github.com/jihwankim/detsim/pkg/model"
)

// pairKey is the canonical (smaller, larger) form of an unordered node
// pair. Self-loops key as (id, id) and flow through full link semantics.
type pairKey struct {
	a, b model.NodeID
}

func canonicalPair(from, to model.NodeID) pairKey {
	if to.Less(from) {
		return pairKey{a: to, b: from}
	}
	return pairKey{a: from, b: to}
}

// Network owns the links and the partition state machine. Links are
// created lazily on first use between a pair and persist for the run.
type Network[M model.ProtocolMessage] struct {
	links     map[pairKey]*Link[M]
	partition *Partition
	cfg       Config
	start     time.Time
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// New builds a network over the full set of node identities. The RNG is
// the shared engine stream; construction draws from it when partitions
// are enabled.
func New[M model.ProtocolMessage](start time.Time, cfg Config, nodes []model.NodeID,
	rng *rand.Rand, logger zerolog.Logger, m *metrics.Metrics) *Network[M] {
	return &Network[M]{
		links:     make(map[pairKey]*Link[M]),
		partition: NewPartition(start, nodes, cfg, rng, logger, m),
		cfg:       cfg,
		start:     start,
		logger:    logger,
		metrics:   m,
	}
}

// Send routes one message and returns its delivery intents. A partitioned
// send is silently dropped; otherwise the pair's link decides delay,
// duplication, loss or hold.
func (n *Network[M]) Send(msg M, now time.Time, rng *rand.Rand) []Delivery[M] {
	from := msg.Source()
	to := msg.Destination()

	if n.partition.IsPartitioned(now, from, to, rng) {
		n.metrics.MessagesDropped.WithLabelValues(metrics.DropReasonPartition).Inc()
		n.logger.Debug().
			Dur("time", now.Sub(n.start)).
			Stringer("from", from).
			Stringer("to", to).
			Msg("message dropped by partition")
		return nil
	}

	key := canonicalPair(from, to)
	link, ok := n.links[key]
	if !ok {
		link = NewLink[M](n.cfg, n.start, now, from, to, rng, n.logger, n.metrics)
		n.links[key] = link
	}
	return link.Send(msg, now, rng)
}

// Partition exposes the partition state machine for diagnostics and
// invariant checkers.
func (n *Network[M]) Partition() *Partition {
	return n.partition
}
