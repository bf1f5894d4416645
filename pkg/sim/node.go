package sim

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/jihwankim/detsim/pkg/config"
	"github.com/jihwankim/detsim/pkg/metrics"
	"github.com/jihwankim/detsim/pkg/model"
	"github.com/jihwankim/detsim/pkg/randutil"
)

type nodePhase uint8

const (
	nodeNormal nodePhase = iota
	nodeFailed
)

// NodeWrapper gates a user server node behind the crash/recovery state
// machine. While failed, ticks are suppressed and delivered messages are
// dropped. Clients are never wrapped; they do not crash.
type NodeWrapper[M model.ProtocolMessage, N model.DeterministicNode[M]] struct {
	node  N
	phase nodePhase

	// failureTime is the next scheduled crash while normal; zero when
	// crashes are disabled.
	failureTime time.Time

	// recoveryTime ends the current outage while failed.
	recoveryTime time.Time

	failureCfg   config.FailureConfiguration
	replicaCount int
	start        time.Time
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

func newNodeWrapper[M model.ProtocolMessage, N model.DeterministicNode[M]](node N,
	failureCfg config.FailureConfiguration, rng *rand.Rand, start time.Time,
	replicaCount int, logger zerolog.Logger, m *metrics.Metrics) *NodeWrapper[M, N] {
	w := &NodeWrapper[M, N]{
		node:         node,
		failureCfg:   failureCfg,
		replicaCount: replicaCount,
		start:        start,
		logger:       logger,
		metrics:      m,
	}
	if failureCfg.FailuresEnabled() {
		w.failureTime = randutil.SampleFailureTime(start, failureCfg.MeanTimeBetweenFailures, rng)
	}
	return w
}

// Node returns the wrapped user node, e.g. for invariant checkers that
// inspect protocol state.
func (w *NodeWrapper[M, N]) Node() N {
	return w.node
}

// ID returns the wrapped node's identity.
func (w *NodeWrapper[M, N]) ID() model.NodeID {
	return w.node.ID()
}

// IsUp reports whether the node can currently serve: not crashed and not
// still rebuilding state after a restart.
func (w *NodeWrapper[M, N]) IsUp() bool {
	return w.phase != nodeFailed && !w.node.IsRecovering()
}

// hasFailed advances the crash state machine to now and reports whether
// the node is failed afterwards. canFail gates the crash transition so the
// simulator can enforce the quorum cap.
func (w *NodeWrapper[M, N]) hasFailed(now time.Time, canFail bool, rng *rand.Rand) bool {
	switch w.phase {
	case nodeNormal:
		if w.failureTime.IsZero() || now.Before(w.failureTime) || !canFail {
			break
		}
		// The recovery interval reuses the failure mean; mean_time_to_recover
		// is recognized but not consulted.
		w.recoveryTime = randutil.SampleFailureTime(now, w.failureCfg.MeanTimeBetweenFailures, rng)
		w.failureTime = time.Time{}
		w.phase = nodeFailed
		w.metrics.NodeCrashes.Inc()
		w.logger.Info().
			Dur("time", now.Sub(w.start)).
			Stringer("node", w.ID()).
			Msg("node crashed")

	case nodeFailed:
		if now.Before(w.recoveryTime) {
			break
		}
		w.recoveryTime = time.Time{}
		w.failureTime = time.Time{}
		if w.failureCfg.FailuresEnabled() {
			w.failureTime = randutil.SampleFailureTime(now, w.failureCfg.MeanTimeBetweenFailures, rng)
		}
		w.phase = nodeNormal
		nonce := rng.Uint64()
		w.metrics.NodeRestarts.Inc()
		w.logger.Info().
			Dur("time", now.Sub(w.start)).
			Stringer("node", w.ID()).
			Msg("node restarted")
		w.node.Recover(now, nonce, w.replicaCount)
	}
	return w.phase == nodeFailed
}

// Tick advances the crash state machine (ticks never cause failures) and
// delegates to the node if it is up.
func (w *NodeWrapper[M, N]) Tick(now time.Time, rng *rand.Rand) []M {
	if w.hasFailed(now, false, rng) {
		return nil
	}
	return w.node.Tick(now)
}

// ProcessMessage advances the crash state machine; the delivery itself may
// trigger the crash when canFail allows it. A message arriving at a failed
// node is dropped.
func (w *NodeWrapper[M, N]) ProcessMessage(msg M, now time.Time, canFail bool, rng *rand.Rand) []M {
	if w.hasFailed(now, canFail, rng) {
		w.metrics.MessagesDropped.WithLabelValues(metrics.DropReasonNodeDown).Inc()
		return nil
	}
	return w.node.ProcessMessage(msg, now)
}
