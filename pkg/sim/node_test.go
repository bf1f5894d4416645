package sim

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/detsim/pkg/config"
	"github.com/jihwankim/detsim/pkg/metrics"
	"github.com/jihwankim/detsim/pkg/model"
)

type wrapMsg struct {
	from, to model.NodeID
}

func (m wrapMsg) Source() model.NodeID      { return m.from }
func (m wrapMsg) Destination() model.NodeID { return m.to }

type wrapNode struct {
	id        model.NodeID
	ticks     int
	processed int
	nonces    []uint64
}

func (n *wrapNode) ID() model.NodeID { return n.id }

func (n *wrapNode) Tick(time.Time) []wrapMsg {
	n.ticks++
	return nil
}

func (n *wrapNode) ProcessMessage(wrapMsg, time.Time) []wrapMsg {
	n.processed++
	return nil
}

func (n *wrapNode) Recover(_ time.Time, nonce uint64, _ int) {
	n.nonces = append(n.nonces, nonce)
}

func (n *wrapNode) IsRecovering() bool { return false }

var wrapStart = time.Unix(0, 0).UTC()

func newTestWrapper(mtbf time.Duration, rng *rand.Rand) (*NodeWrapper[wrapMsg, *wrapNode], *wrapNode) {
	node := &wrapNode{id: model.Server(0)}
	w := newNodeWrapper[wrapMsg](node, config.FailureConfiguration{
		MeanTimeBetweenFailures: mtbf,
	}, rng, wrapStart, 3, zerolog.Nop(), metrics.New())
	return w, node
}

func TestNodeWrapperNeverFailsWhenDisabled(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w, node := newTestWrapper(0, rng)

	msg := wrapMsg{from: model.Client(0), to: model.Server(0)}
	for i := 1; i <= 100; i++ {
		now := wrapStart.Add(time.Duration(i) * time.Hour)
		w.ProcessMessage(msg, now, true, rng)
		assert.True(t, w.IsUp())
	}
	assert.Equal(t, 100, node.processed)
}

func TestNodeWrapperCrashGatedByCanFail(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w, node := newTestWrapper(time.Millisecond, rng)

	msg := wrapMsg{from: model.Client(0), to: model.Server(0)}
	due := wrapStart.Add(time.Hour) // far past the sampled failure instant

	// canFail=false suppresses the crash even though the failure is due.
	w.ProcessMessage(msg, due, false, rng)
	assert.True(t, w.IsUp())
	assert.Equal(t, 1, node.processed)

	// canFail=true lets the delivery itself trigger the crash; the message
	// is dropped.
	w.ProcessMessage(msg, due, true, rng)
	assert.False(t, w.IsUp())
	assert.Equal(t, 1, node.processed)
}

func TestNodeWrapperTickNeverCrashes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w, node := newTestWrapper(time.Millisecond, rng)

	// The failure instant is long overdue, but ticks pass canFail=false.
	w.Tick(wrapStart.Add(time.Hour), rng)
	assert.True(t, w.IsUp())
	assert.Equal(t, 1, node.ticks)
}

func TestNodeWrapperRecoversAndCallsRecover(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w, node := newTestWrapper(time.Millisecond, rng)

	msg := wrapMsg{from: model.Client(0), to: model.Server(0)}
	crashAt := wrapStart.Add(time.Hour)
	w.ProcessMessage(msg, crashAt, true, rng)
	require.False(t, w.IsUp())

	// Messages arriving during the outage are dropped.
	w.ProcessMessage(msg, crashAt, true, rng)
	assert.Equal(t, 0, node.processed)

	// Recovery is exponential with a 1ms mean; an hour later the node is
	// back, recover was invoked with a fresh nonce, and traffic flows.
	later := crashAt.Add(time.Hour)
	w.ProcessMessage(msg, later, true, rng)
	assert.True(t, w.IsUp())
	require.Len(t, node.nonces, 1)
	assert.Equal(t, 1, node.processed)
}
