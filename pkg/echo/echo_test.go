package echo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/detsim/pkg/config"
	"github.com/jihwankim/detsim/pkg/echo"
	"github.com/jihwankim/detsim/pkg/network"
	"github.com/jihwankim/detsim/pkg/sim"
)

var simStart = time.Unix(0, 0).UTC()

type echoRun struct {
	completed bool
	servers   []*echo.Server
	client    *echo.Client
	sim       *sim.Simulator[echo.Message, *echo.Server, *echo.Client]
}

// runEcho mirrors the canonical fixture: one client issuing
// totalRequests requests against serverCount servers, 50ms ticks, a 30s
// budget, invariants checked on every event.
func runEcho(t *testing.T, netCfg network.Config, serverCount int, totalRequests uint64,
	withRetries bool, seed uint64, checker sim.InvariantChecker[echo.Message, *echo.Server, *echo.Client]) echoRun {
	t.Helper()

	cfg := config.Default()
	cfg.TickInterval = 50 * time.Millisecond
	cfg.MaxSimTime = 30 * time.Second
	cfg.Seed = seed
	cfg.CheckInvariantsFrequency = 1
	cfg.Network = netCfg

	servers := make([]*echo.Server, serverCount)
	for i := range servers {
		servers[i] = echo.NewServer(i)
	}
	client := echo.NewClient(0, totalRequests, 200*time.Millisecond, withRetries)

	s, err := sim.New[echo.Message](simStart, servers, []*echo.Client{client}, cfg, checker)
	require.NoError(t, err)

	return echoRun{
		completed: s.Run(),
		servers:   servers,
		client:    client,
		sim:       s,
	}
}

// requireCompletedSubsetOfReplied asserts the core echo invariant on the
// final state.
func requireCompletedSubsetOfReplied(t *testing.T, run echoRun) {
	t.Helper()
	for _, id := range run.client.CompletedIDs() {
		replied := false
		for _, srv := range run.servers {
			if srv.Replied(id) {
				replied = true
				break
			}
		}
		require.True(t, replied, "request %d completed but never replied", id)
	}
}

func TestReliableNetwork(t *testing.T) {
	netCfg := network.DefaultConfig()
	netCfg.DuplicateProbability = 0
	netCfg.MeanTimeBetweenLinkFailures = 0
	netCfg.MeanTimeBetweenPartitions = 0

	run := runEcho(t, netCfg, 1, 10, false, 1, echo.Checker{})

	require.True(t, run.completed)
	assert.Equal(t, 10, run.client.CompletedCount())
	requireCompletedSubsetOfReplied(t, run)
}

func TestUnreliableNetworkWithoutRetries(t *testing.T) {
	// A mostly-dead network: links fail every 300ms on average, always
	// dropping (no holds), and take a second to recover. Without retries
	// the client wedges on the first lost message and never finishes.
	netCfg := network.DefaultConfig()
	netCfg.MeanTimeBetweenLinkFailures = 300 * time.Millisecond
	netCfg.MeanLinkRecoveryTime = time.Second
	netCfg.HoldProbability = 0

	run := runEcho(t, netCfg, 1, 10, false, 1, echo.Checker{})

	assert.False(t, run.completed)
	assert.Less(t, run.client.CompletedCount(), 10)
	requireCompletedSubsetOfReplied(t, run)
}

func TestUnreliableNetworkWithRetries(t *testing.T) {
	run := runEcho(t, network.DefaultConfig(), 1, 10, true, 1, echo.Checker{})

	require.True(t, run.completed)
	assert.Equal(t, 10, run.client.CompletedCount())
	requireCompletedSubsetOfReplied(t, run)
}

func TestPartitionHeavyNetwork(t *testing.T) {
	// Partitions reopen a millisecond after closing, so the network spends
	// most of the run bisected. The echo invariant must hold throughout
	// (the checker panics otherwise); completion is not guaranteed.
	netCfg := network.DefaultConfig()
	netCfg.MeanTimeBetweenLinkFailures = 0
	netCfg.MeanTimeBetweenPartitions = time.Millisecond
	netCfg.MeanPartitionRecoveryTime = time.Second

	run := runEcho(t, netCfg, 2, 10, true, 1, echo.Checker{})

	requireCompletedSubsetOfReplied(t, run)
	assert.LessOrEqual(t, run.client.CompletedCount(), 10)
}

// capChecker chains the echo invariants with the quorum cap.
type capChecker struct {
	limit     int
	maxFailed int
	calls     int
}

func (c *capChecker) CheckInvariants(seed uint64, servers []*sim.NodeWrapper[echo.Message, *echo.Server], clients []*echo.Client) {
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
	echo.Checker{}.CheckInvariants(seed, servers, clients)
}

func TestCrashCapWithFiveServers(t *testing.T) {
	netCfg := network.DefaultConfig()
	netCfg.MeanTimeBetweenLinkFailures = 0
	netCfg.MeanTimeBetweenPartitions = 0

	cfg := config.Default()
	cfg.TickInterval = 50 * time.Millisecond
	cfg.MaxSimTime = 30 * time.Second
	cfg.Network = netCfg
	cfg.Failure.MeanTimeBetweenFailures = 10 * time.Millisecond

	servers := make([]*echo.Server, 5)
	for i := range servers {
		servers[i] = echo.NewServer(i)
	}
	client := echo.NewClient(0, 10, 200*time.Millisecond, true)
	checker := &capChecker{limit: 2}

	s, err := sim.New[echo.Message](simStart, servers, []*echo.Client{client}, cfg, checker)
	require.NoError(t, err)
	s.Run()

	assert.Positive(t, checker.calls)
	assert.LessOrEqual(t, checker.maxFailed, checker.limit,
		"more than floor(5/2) servers down at once")
}

func TestDeterministicEchoRuns(t *testing.T) {
	first := runEcho(t, network.DefaultConfig(), 1, 10, true, 17, echo.Checker{})
	second := runEcho(t, network.DefaultConfig(), 1, 10, true, 17, echo.Checker{})

	assert.Equal(t, first.completed, second.completed)
	assert.Equal(t, first.client.CompletedIDs(), second.client.CompletedIDs())
	assert.Equal(t, first.servers[0].RepliedCount(), second.servers[0].RepliedCount())
	assert.Equal(t, first.sim.EventsProcessed(), second.sim.EventsProcessed())
	assert.Equal(t, first.sim.MessagesSent(), second.sim.MessagesSent())
	assert.Equal(t, first.sim.Elapsed(), second.sim.Elapsed())
}
