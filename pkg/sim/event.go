package sim

import (
	"time"

	"github.com/jihwankim/detsim/pkg/model"
)

// EventTime is the total order of the event queue: virtual instant first,
// then a strictly increasing insertion offset. The offset makes ordering
// reproducible even when several events land on the same instant.
type EventTime struct {
	Time   time.Time
	Offset int
}

// Before reports whether e orders strictly before other.
func (e EventTime) Before(other EventTime) bool {
	if !e.Time.Equal(other.Time) {
		return e.Time.Before(other.Time)
	}
	return e.Offset < other.Offset
}

// SimulationMessage pairs a protocol message with the engine-assigned
// message id used for trace correlation. The id is never delivered to the
// protocol.
type SimulationMessage[M model.ProtocolMessage] struct {
	Message M
	ID      int
}

type eventKind uint8

const (
	eventTick eventKind = iota
	eventMessage
)

type event[M model.ProtocolMessage] struct {
	kind eventKind
	msg  SimulationMessage[M] // valid when kind == eventMessage
}

type queuedEvent[M model.ProtocolMessage] struct {
	at EventTime
	ev event[M]
}

// eventQueue is a min-heap over (time, offset). Offsets are unique across
// the simulator's lifetime, so no two entries ever compare equal and pop
// order is total.
type eventQueue[M model.ProtocolMessage] []queuedEvent[M]

func (q eventQueue[M]) Len() int           { return len(q) }
func (q eventQueue[M]) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q eventQueue[M]) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *eventQueue[M]) Push(x any) {
	*q = append(*q, x.(queuedEvent[M]))
}

func (q *eventQueue[M]) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
