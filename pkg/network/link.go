package network

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/jihwankim/detsim/pkg/metrics"
	"github.com/jihwankim/detsim/pkg/model"
	"github.com/jihwankim/detsim/pkg/randutil"
)

// Delivery pairs a routed message with its sampled delivery delay.
type Delivery[M model.ProtocolMessage] struct {
	Message M
	Delay   time.Duration
}

type linkPhase uint8

const (
	linkUp linkPhase = iota
	linkTempFailure
	linkTempHold
)

func (p linkPhase) String() string {
	switch p {
	case linkUp:
		return "up"
	case linkTempFailure:
		return "temp_failure"
	case linkTempHold:
		return "temp_hold"
	default:
		return "unknown"
	}
}

// Link is the channel state machine for one unordered node pair. While up
// it delivers with sampled latency and occasional duplication; on a
// scheduled failure it either drops traffic or holds it in FIFO order
// until recovery. Transitions are applied lazily: state is advanced to
// `now` at the start of every Send.
type Link[M model.ProtocolMessage] struct {
	phase linkPhase

	// expectedFailure is the next scheduled failure instant while up; zero
	// when link failures are disabled.
	expectedFailure time.Time

	// expectedRecovery is the end of the current outage while in
	// temp_failure or temp_hold.
	expectedRecovery time.Time

	// held buffers messages in FIFO order while in temp_hold.
	held []M

	cfg      Config
	start    time.Time
	from, to model.NodeID
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewLink creates a link in the up state, scheduling its first failure if
// link failures are enabled.
func NewLink[M model.ProtocolMessage](cfg Config, start, now time.Time, from, to model.NodeID,
	rng *rand.Rand, logger zerolog.Logger, m *metrics.Metrics) *Link[M] {
	l := &Link[M]{
		cfg:     cfg,
		start:   start,
		from:    from,
		to:      to,
		logger:  logger,
		metrics: m,
	}
	l.resetUp(now, rng)
	return l
}

// resetUp moves the link to a fresh up state and schedules the next
// failure if the fault is enabled.
func (l *Link[M]) resetUp(now time.Time, rng *rand.Rand) {
	l.phase = linkUp
	l.held = nil
	l.expectedRecovery = time.Time{}
	l.expectedFailure = time.Time{}
	if l.cfg.LinkFailuresEnabled() {
		l.expectedFailure = randutil.SampleFailureTime(now, l.cfg.MeanTimeBetweenLinkFailures, rng)
	}
}

// Send advances the link to now and routes one message. The returned
// deliveries may include messages released from a hold that just ended;
// every delivery carries an independently sampled delay. An empty result
// means the message was dropped or held.
func (l *Link[M]) Send(msg M, now time.Time, rng *rand.Rand) []Delivery[M] {
	released := l.advance(now, rng)

	switch l.phase {
	case linkUp:
		out := released
		if rng.Float64() < l.cfg.DuplicateProbability {
			out = append(out, msg)
			l.metrics.DuplicatesEmitted.Inc()
		}
		out = append(out, msg)
		deliveries := make([]Delivery[M], 0, len(out))
		for _, m := range out {
			deliveries = append(deliveries, Delivery[M]{Message: m, Delay: l.sampleDelay(rng)})
		}
		l.metrics.Deliveries.Add(float64(len(deliveries)))
		return deliveries
	case linkTempHold:
		l.held = append(l.held, msg)
		l.metrics.MessagesHeld.Inc()
		return nil
	default: // linkTempFailure: the message is lost
		l.metrics.MessagesDropped.WithLabelValues(metrics.DropReasonLinkDown).Inc()
		return nil
	}
}

// advance applies at most one lazy state transition for the current
// instant and returns any messages released by a hold ending.
func (l *Link[M]) advance(now time.Time, rng *rand.Rand) []M {
	switch l.phase {
	case linkUp:
		if l.expectedFailure.IsZero() || now.Before(l.expectedFailure) {
			return nil
		}
		hold := rng.Float64() < l.cfg.HoldProbability
		l.expectedRecovery = randutil.SampleFailureTime(now, l.cfg.MeanLinkRecoveryTime, rng)
		l.expectedFailure = time.Time{}
		if hold {
			l.phase = linkTempHold
			l.logEvent(now, "link failed, holding messages")
		} else {
			l.phase = linkTempFailure
			l.logEvent(now, "link failed")
		}
		l.metrics.LinkFailures.Inc()
		return nil

	case linkTempFailure, linkTempHold:
		if now.Before(l.expectedRecovery) {
			return nil
		}
		released := l.held
		l.resetUp(now, rng)
		l.logEvent(now, "link up again")
		l.metrics.LinkRecoveries.Inc()
		return released

	default:
		return nil
	}
}

func (l *Link[M]) sampleDelay(rng *rand.Rand) time.Duration {
	mult := rng.ExpFloat64() / l.cfg.LatencyRate
	spread := l.cfg.MaxMessageLatency - l.cfg.MinMessageLatency
	delay := l.cfg.MinMessageLatency + time.Duration(float64(spread)*mult)
	if delay > l.cfg.MaxMessageLatency {
		delay = l.cfg.MaxMessageLatency
	}
	return delay
}

func (l *Link[M]) logEvent(now time.Time, msg string) {
	l.logger.Info().
		Dur("time", now.Sub(l.start)).
		Stringer("from", l.from).
		Stringer("to", l.to).
		Msg(msg)
}
