package network

import (
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jihwankim/detsim/pkg/metrics"
	"github.com/jihwankim/detsim/pkg/model"
	"github.com/jihwankim/detsim/pkg/randutil"
)

type partitionPhase uint8

const (
	partitionNormal partitionPhase = iota
	partitionActive
)

// Partition is the whole-network bisection state machine. While active it
// cuts all traffic with exactly one endpoint in side A; intra-side traffic
// is unaffected. Like links, it advances lazily, on every routing query.
type Partition struct {
	phase partitionPhase

	// expectedPartition is the next scheduled partition instant while
	// normal; zero when partitions are disabled.
	expectedPartition time.Time

	// expectedRecovery ends the current partition window.
	expectedRecovery time.Time

	sideA map[model.NodeID]struct{}

	nodes   []model.NodeID
	cfg     Config
	start   time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewPartition creates the partition state machine over the full set of
// node identities, scheduling the first partition if enabled.
func NewPartition(now time.Time, nodes []model.NodeID, cfg Config, rng *rand.Rand,
	logger zerolog.Logger, m *metrics.Metrics) *Partition {
	p := &Partition{
		nodes:   nodes,
		cfg:     cfg,
		start:   now,
		logger:  logger,
		metrics: m,
	}
	if cfg.PartitionsEnabled() {
		p.expectedPartition = randutil.SampleFailureTime(now, cfg.MeanTimeBetweenPartitions, rng)
	}
	return p
}

// IsPartitioned advances the state machine to now and reports whether
// traffic from from to to crosses the cut.
func (p *Partition) IsPartitioned(now time.Time, from, to model.NodeID, rng *rand.Rand) bool {
	p.advance(now, rng)
	if p.phase != partitionActive {
		return false
	}
	_, fromA := p.sideA[from]
	_, toA := p.sideA[to]
	return fromA != toA
}

// Active reports whether a partition window is currently open. State is
// not advanced; callers that need current state should route a query
// through IsPartitioned first.
func (p *Partition) Active() bool {
	return p.phase == partitionActive
}

// SideA returns the members of side A in NodeID order, or nil when no
// partition is active.
func (p *Partition) SideA() []model.NodeID {
	if p.phase != partitionActive {
		return nil
	}
	side := make([]model.NodeID, 0, len(p.sideA))
	for id := range p.sideA {
		side = append(side, id)
	}
	sort.Slice(side, func(i, j int) bool { return side[i].Less(side[j]) })
	return side
}

func (p *Partition) advance(now time.Time, rng *rand.Rand) {
	switch p.phase {
	case partitionNormal:
		if p.expectedPartition.IsZero() || now.Before(p.expectedPartition) {
			return
		}
		p.sideA = sampleRandomSubset(p.nodes, rng)
		p.expectedRecovery = randutil.SampleFailureTime(now, p.cfg.MeanPartitionRecoveryTime, rng)
		p.expectedPartition = time.Time{}
		p.phase = partitionActive
		p.metrics.PartitionsStarted.Inc()
		p.logger.Info().
			Dur("time", now.Sub(p.start)).
			Strs("side_a", nodeNames(p.SideA())).
			Msg("network partition started")

	case partitionActive:
		if now.Before(p.expectedRecovery) {
			return
		}
		p.phase = partitionNormal
		p.sideA = nil
		if p.cfg.PartitionsEnabled() {
			p.expectedPartition = randutil.SampleFailureTime(now, p.cfg.MeanTimeBetweenPartitions, rng)
		}
		p.metrics.PartitionsEnded.Inc()
		p.logger.Info().
			Dur("time", now.Sub(p.start)).
			Msg("network partition ended")
	}
}

// sampleRandomSubset draws a partition side: size k uniform in [1, N],
// membership by Fisher-Yates shuffle over all N identities.
func sampleRandomSubset(nodes []model.NodeID, rng *rand.Rand) map[model.NodeID]struct{} {
	k := 1 + rng.Intn(len(nodes))
	indices := make([]int, len(nodes))
	for i := range indices {
		indices[i] = i
	}
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	side := make(map[model.NodeID]struct{}, k)
	for _, idx := range indices[:k] {
		side[nodes[idx]] = struct{}{}
	}
	return side
}

func nodeNames(ids []model.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
