package sim_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/detsim/pkg/config"
	"github.com/jihwankim/detsim/pkg/model"
	"github.com/jihwankim/detsim/pkg/sim"
)

var simStart = time.Unix(0, 0).UTC()

type pingMsg struct {
	from, to model.NodeID
	seq      int
}

func (m pingMsg) Source() model.NodeID      { return m.from }
func (m pingMsg) Destination() model.NodeID { return m.to }

type receipt struct {
	at       time.Duration
	from, to model.NodeID
	seq      int
}

// pingServer answers every ping with a pong and keeps a receipt trace.
type pingServer struct {
	id    model.NodeID
	trace []receipt
}

func newPingServer(i int) *pingServer {
	return &pingServer{id: model.Server(i)}
}

func (s *pingServer) ID() model.NodeID { return s.id }

func (s *pingServer) Tick(time.Time) []pingMsg { return nil }

func (s *pingServer) ProcessMessage(msg pingMsg, now time.Time) []pingMsg {
	s.trace = append(s.trace, receipt{at: now.Sub(simStart), from: msg.from, to: msg.to, seq: msg.seq})
	return []pingMsg{{from: s.id, to: msg.from, seq: msg.seq}}
}

func (s *pingServer) Recover(time.Time, uint64, int) {}

func (s *pingServer) IsRecovering() bool { return false }

// pingClient pings a rotating server every tick. With finishAfter == 0 it
// never finishes; otherwise it finishes after that many pongs.
type pingClient struct {
	id          model.NodeID
	servers     int
	seq         int
	trace       []receipt
	tickTimes   []time.Time
	finishAfter int
}

func newPingClient(i, servers, finishAfter int) *pingClient {
	return &pingClient{id: model.Client(i), servers: servers, finishAfter: finishAfter}
}

func (c *pingClient) ID() model.NodeID { return c.id }

func (c *pingClient) Tick(now time.Time) []pingMsg {
	c.tickTimes = append(c.tickTimes, now)
	if c.servers == 0 {
		return nil
	}
	c.seq++
	return []pingMsg{{from: c.id, to: model.Server(c.seq % c.servers), seq: c.seq}}
}

func (c *pingClient) ProcessMessage(msg pingMsg, now time.Time) []pingMsg {
	c.trace = append(c.trace, receipt{at: now.Sub(simStart), from: msg.from, to: msg.to, seq: msg.seq})
	return nil
}

func (c *pingClient) Finished() bool {
	return c.finishAfter > 0 && len(c.trace) >= c.finishAfter
}

// recordingChecker tracks how often it ran and the worst failed-server
// count it ever observed.
type recordingChecker struct {
	calls     int
	maxFailed int
}

func (c *recordingChecker) CheckInvariants(_ uint64, servers []*sim.NodeWrapper[pingMsg, *pingServer], _ []*pingClient) {
	c.calls++
	failed := 0
	for _, srv := range servers {
		if !srv.IsUp() {
			failed++
		}
	}
	if failed > c.maxFailed {
		c.maxFailed = failed
	}
}

func reliableConfig() config.Configuration {
	cfg := config.Default()
	cfg.Network.DuplicateProbability = 0
	cfg.Network.MeanTimeBetweenLinkFailures = 0
	cfg.Network.MeanTimeBetweenPartitions = 0
	cfg.Failure.MeanTimeBetweenFailures = 0
	return cfg
}

func TestNewRejectsNonDenseServerIDs(t *testing.T) {
	servers := []*pingServer{{id: model.Server(1)}} // should be Server(0)
	clients := []*pingClient{newPingClient(0, 1, 1)}

	_, err := sim.New[pingMsg](simStart, servers, clients, reliableConfig(), &recordingChecker{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server ids must be dense")
}

func TestNewRejectsNonDenseClientIDs(t *testing.T) {
	servers := []*pingServer{newPingServer(0)}
	clients := []*pingClient{{id: model.Client(2), servers: 1}}

	_, err := sim.New[pingMsg](simStart, servers, clients, reliableConfig(), &recordingChecker{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client ids must be dense")
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	cfg := reliableConfig()
	cfg.TickInterval = 0

	_, err := sim.New[pingMsg](simStart,
		[]*pingServer{newPingServer(0)}, []*pingClient{newPingClient(0, 1, 1)},
		cfg, &recordingChecker{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick_interval")
}

func TestTickCadenceUntilClientsFinish(t *testing.T) {
	cfg := reliableConfig()
	cfg.TickInterval = 50 * time.Millisecond
	cfg.MaxSimTime = 30 * time.Second

	// One pong finishes the client after the first round trip, but ticks
	// keep their exact cadence until then.
	client := newPingClient(0, 1, 1)
	servers := []*pingServer{newPingServer(0)}

	s, err := sim.New[pingMsg](simStart, servers, []*pingClient{client}, cfg, &recordingChecker{})
	require.NoError(t, err)
	require.True(t, s.Run())

	require.NotEmpty(t, client.tickTimes)
	for k, at := range client.tickTimes {
		assert.Equal(t, simStart.Add(time.Duration(k)*cfg.TickInterval), at,
			"tick %d fired off-cadence", k)
	}
}

func TestTickCountUnderBudget(t *testing.T) {
	cfg := reliableConfig()
	cfg.TickInterval = 50 * time.Millisecond
	cfg.MaxSimTime = time.Second

	// The client never finishes and sends nothing, so ticks are the only
	// events: one at every multiple of 50ms in [0s, 1s], then the budget
	// check fires.
	client := newPingClient(0, 0, 0)

	s, err := sim.New[pingMsg](simStart, []*pingServer{}, []*pingClient{client},
		cfg, &recordingChecker{})
	require.NoError(t, err)
	require.False(t, s.Run())

	assert.Len(t, client.tickTimes, 21)
	assert.Equal(t, time.Second+50*time.Millisecond, s.Elapsed())
}

func TestDeterministicTrace(t *testing.T) {
	run := func() (*pingServer, *pingClient, *sim.Simulator[pingMsg, *pingServer, *pingClient]) {
		cfg := config.Default() // all fault models enabled
		cfg.Seed = 99
		server := newPingServer(0)
		client := newPingClient(0, 1, 0) // never finishes; runs to budget
		s, err := sim.New[pingMsg](simStart, []*pingServer{server}, []*pingClient{client},
			cfg, &recordingChecker{})
		require.NoError(t, err)
		require.False(t, s.Run())
		return server, client, s
	}

	server1, client1, sim1 := run()
	server2, client2, sim2 := run()

	assert.Equal(t, server1.trace, server2.trace)
	assert.Equal(t, client1.trace, client2.trace)
	assert.Equal(t, sim1.EventsProcessed(), sim2.EventsProcessed())
	assert.Equal(t, sim1.MessagesSent(), sim2.MessagesSent())
	assert.Equal(t, sim1.Elapsed(), sim2.Elapsed())
}

func TestDifferentSeedsDiverge(t *testing.T) {
	run := func(seed uint64) *pingClient {
		cfg := config.Default()
		cfg.Seed = seed
		server := newPingServer(0)
		client := newPingClient(0, 1, 0)
		s, err := sim.New[pingMsg](simStart, []*pingServer{server}, []*pingClient{client},
			cfg, &recordingChecker{})
		require.NoError(t, err)
		s.Run()
		return client
	}

	// Under the chaotic default network, two seeds all but surely produce
	// different delivery traces.
	assert.NotEqual(t, run(1).trace, run(2).trace)
}

func TestQuorumCapNeverExceeded(t *testing.T) {
	cfg := reliableConfig()
	cfg.Failure.MeanTimeBetweenFailures = 10 * time.Millisecond
	cfg.MaxSimTime = 10 * time.Second

	servers := make([]*pingServer, 5)
	for i := range servers {
		servers[i] = newPingServer(i)
	}
	client := newPingClient(0, 5, 0)
	checker := &recordingChecker{}

	s, err := sim.New[pingMsg](simStart, servers, []*pingClient{client}, cfg, checker)
	require.NoError(t, err)
	s.Run()

	assert.Positive(t, checker.calls)
	assert.LessOrEqual(t, checker.maxFailed, 2, "more than floor(5/2) servers down at once")
}
