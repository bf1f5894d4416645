// Package sim implements the deterministic discrete-event simulator: a
// single-threaded loop over a time-ordered event queue, dispatching ticks
// and message deliveries to user nodes through the crash wrapper and the
// adversarial network. Every stochastic decision draws from one RNG
// stream seeded from the configuration, so a run replays byte-identically
// from its seed.
package sim

import (
	"container/heap"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/jihwankim/detsim/pkg/config"
	"github.com/jihwankim/detsim/pkg/metrics"
	"github.com/jihwankim/detsim/pkg/model"
	"github.com/jihwankim/detsim/pkg/network"
)

// InvariantChecker inspects protocol state periodically during a run.
// Implementations are expected to abort (panic) on violation; the panic
// message should include the seed so the failure can be replayed.
type InvariantChecker[M model.ProtocolMessage, N model.DeterministicNode[M], C model.DeterministicClient[M]] interface {
	CheckInvariants(seed uint64, servers []*NodeWrapper[M, N], clients []C)
}

// Option configures optional simulator collaborators.
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// WithLogger routes engine logging (ticks, sends, fault transitions) to l.
// The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics makes the run count into m instead of a private registry,
// so the caller can render or scrape the counters afterwards.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Simulator owns the event queue, the network, the wrapped servers, the
// clients, the RNG and the invariant checker. It is single-threaded
// cooperative: exactly one event is processed to completion at a time.
type Simulator[M model.ProtocolMessage, N model.DeterministicNode[M], C model.DeterministicClient[M]] struct {
	startTime time.Time
	network   *network.Network[M]
	servers   []*NodeWrapper[M, N]
	clients   []C
	events    eventQueue[M]
	cfg       config.Configuration
	rng       *rand.Rand
	elapsed   time.Duration

	eventProcessedCount int
	totalEventCount     int
	totalMessageCount   int

	checker InvariantChecker[M, N, C]
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New validates the configuration and node identities, seeds the RNG,
// wraps the servers in the crash model, builds the network over all node
// identities and enqueues the initial tick at startTime.
func New[M model.ProtocolMessage, N model.DeterministicNode[M], C model.DeterministicClient[M]](
	startTime time.Time, servers []N, clients []C, cfg config.Configuration,
	checker InvariantChecker[M, N, C], opts ...Option) (*Simulator[M, N, C], error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validateNodeIDs[M](servers, clients); err != nil {
		return nil, err
	}

	o := options{logger: zerolog.Nop(), metrics: metrics.New()}
	for _, opt := range opts {
		opt(&o)
	}

	rng := rand.New(rand.NewSource(int64(cfg.Seed)))

	replicaCount := len(servers)
	wrapped := make([]*NodeWrapper[M, N], 0, len(servers))
	for _, node := range servers {
		wrapped = append(wrapped,
			newNodeWrapper[M](node, cfg.Failure, rng, startTime, replicaCount, o.logger, o.metrics))
	}

	ids := make([]model.NodeID, 0, len(servers)+len(clients))
	for i := range servers {
		ids = append(ids, model.Server(i))
	}
	for i := range clients {
		ids = append(ids, model.Client(i))
	}

	s := &Simulator[M, N, C]{
		startTime: startTime,
		network:   network.New[M](startTime, cfg.Network, ids, rng, o.logger, o.metrics),
		servers:   wrapped,
		clients:   clients,
		cfg:       cfg,
		rng:       rng,
		checker:   checker,
		logger:    o.logger,
		metrics:   o.metrics,
	}

	// The initial tick carries offset 0; pushEvent starts numbering at 1.
	s.events = eventQueue[M]{{
		at: EventTime{Time: startTime, Offset: 0},
		ev: event[M]{kind: eventTick},
	}}
	return s, nil
}

// Run drains the event queue until every client is finished (true), the
// virtual-time budget is exhausted (false), or the queue runs dry (false).
func (s *Simulator[M, N, C]) Run() bool {
	for len(s.events) > 0 {
		item := heap.Pop(&s.events).(queuedEvent[M])
		s.eventProcessedCount++
		s.metrics.EventsProcessed.Inc()
		now := item.at.Time
		s.elapsed = now.Sub(s.startTime)

		if s.elapsed > s.cfg.MaxSimTime {
			s.logger.Info().
				Dur("elapsed", s.elapsed).
				Int("events", s.eventProcessedCount).
				Msg("simulation time budget exhausted")
			return false
		}

		if s.allClientsFinished() {
			s.checkInvariants()
			s.logger.Info().
				Dur("elapsed", s.elapsed).
				Int("events", s.eventProcessedCount).
				Int("messages", s.totalMessageCount).
				Msg("all clients finished")
			return true
		}

		messages := s.handleEvent(now, item.ev)
		if s.eventProcessedCount%s.cfg.CheckInvariantsFrequency == 0 {
			s.checkInvariants()
		}

		for _, msg := range messages {
			s.totalMessageCount++
			messageID := s.totalMessageCount
			s.metrics.MessagesSent.Inc()
			s.logger.Debug().
				Dur("time", s.elapsed).
				Stringer("from", msg.Source()).
				Stringer("to", msg.Destination()).
				Int("message_id", messageID).
				Msg("sending message")

			for _, d := range s.network.Send(msg, now, s.rng) {
				s.pushEvent(now.Add(d.Delay), event[M]{
					kind: eventMessage,
					msg:  SimulationMessage[M]{Message: d.Message, ID: messageID},
				})
			}
		}
	}
	return false
}

func (s *Simulator[M, N, C]) handleEvent(now time.Time, ev event[M]) []M {
	switch ev.kind {
	case eventMessage:
		msg := ev.msg.Message
		s.logger.Debug().
			Dur("time", s.elapsed).
			Stringer("from", msg.Source()).
			Stringer("to", msg.Destination()).
			Int("message_id", ev.msg.ID).
			Msg("received message")

		dst := msg.Destination()
		switch dst.Kind {
		case model.KindServer:
			canFail := s.canAdditionalServerFail()
			return s.servers[dst.Index].ProcessMessage(msg, now, canFail, s.rng)
		default:
			return s.clients[dst.Index].ProcessMessage(msg, now)
		}

	default: // eventTick
		s.logger.Info().
			Dur("time", s.elapsed).
			Msg("executing tick")

		var messages []M
		for _, srv := range s.servers {
			messages = append(messages, srv.Tick(now, s.rng)...)
		}
		for _, client := range s.clients {
			messages = append(messages, client.Tick(now)...)
		}
		s.pushEvent(now.Add(s.cfg.TickInterval), event[M]{kind: eventTick})
		return messages
	}
}

func (s *Simulator[M, N, C]) pushEvent(at time.Time, ev event[M]) {
	s.totalEventCount++
	heap.Push(&s.events, queuedEvent[M]{
		at: EventTime{Time: at, Offset: s.totalEventCount},
		ev: ev,
	})
}

// canAdditionalServerFail enforces the quorum cap: strictly fewer than
// floor(serverCount/2) servers may be down for a new crash to be
// authorized.
func (s *Simulator[M, N, C]) canAdditionalServerFail() bool {
	maxFailures := len(s.servers) / 2
	failed := 0
	for _, srv := range s.servers {
		if !srv.IsUp() {
			failed++
		}
	}
	return failed < maxFailures
}

func (s *Simulator[M, N, C]) allClientsFinished() bool {
	for _, client := range s.clients {
		if !client.Finished() {
			return false
		}
	}
	return true
}

func (s *Simulator[M, N, C]) checkInvariants() {
	s.metrics.InvariantChecks.Inc()
	s.checker.CheckInvariants(s.cfg.Seed, s.servers, s.clients)
}

// Elapsed returns the virtual time of the most recently dequeued event,
// relative to the start of the run.
func (s *Simulator[M, N, C]) Elapsed() time.Duration {
	return s.elapsed
}

// EventsProcessed returns the number of events dequeued so far.
func (s *Simulator[M, N, C]) EventsProcessed() int {
	return s.eventProcessedCount
}

// MessagesSent returns the number of protocol messages handed to the
// network so far.
func (s *Simulator[M, N, C]) MessagesSent() int {
	return s.totalMessageCount
}

// Network exposes the network model, e.g. for partition diagnostics.
func (s *Simulator[M, N, C]) Network() *network.Network[M] {
	return s.network
}

func validateNodeIDs[M model.ProtocolMessage, N model.DeterministicNode[M], C model.DeterministicClient[M]](servers []N, clients []C) error {
	for i, srv := range servers {
		if want := model.Server(i); srv.ID() != want {
			return fmt.Errorf("server ids must be dense from 0: index %d has id %s, want %s",
				i, srv.ID(), want)
		}
	}
	for i, client := range clients {
		if want := model.Client(i); client.ID() != want {
			return fmt.Errorf("client ids must be dense from 0: index %d has id %s, want %s",
				i, client.ID(), want)
		}
	}
	return nil
}
