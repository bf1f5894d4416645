// Package echo implements the echo request/response protocol used to
// exercise the simulator: clients number their requests, a server echoes
// them back, and an invariant checker ties the two views together. It is
// both the built-in CLI workload and the fixture for the end-to-end
// tests.
package echo

import (
	"fmt"
	"sort"
	"time"

	"github.com/jihwankim/detsim/pkg/model"
	"github.com/jihwankim/detsim/pkg/sim"
)

// MessageKind distinguishes requests from responses.
type MessageKind uint8

const (
	KindRequest MessageKind = iota
	KindResponse
)

// Message is the echo wire format. It is a plain value type; the engine
// copies it freely when the network duplicates.
type Message struct {
	Kind      MessageKind
	RequestID uint64
	Data      string
	From      model.NodeID
	To        model.NodeID
}

// Source returns the sender.
func (m Message) Source() model.NodeID { return m.From }

// Destination returns the receiver.
func (m Message) Destination() model.NodeID { return m.To }

// Server echoes every request back to its sender and remembers which
// request ids it has replied to.
type Server struct {
	id      model.NodeID
	replied map[uint64]struct{}
}

// NewServer creates the echo server with identity Server(index).
func NewServer(index int) *Server {
	return &Server{
		id:      model.Server(index),
		replied: make(map[uint64]struct{}),
	}
}

func (s *Server) ID() model.NodeID { return s.id }

func (s *Server) Tick(time.Time) []Message { return nil }

func (s *Server) ProcessMessage(msg Message, _ time.Time) []Message {
	if msg.Kind != KindRequest {
		return nil
	}
	s.replied[msg.RequestID] = struct{}{}
	return []Message{{
		Kind:      KindResponse,
		RequestID: msg.RequestID,
		Data:      msg.Data,
		From:      s.id,
		To:        msg.From,
	}}
}

// Recover is a no-op: the echo server keeps no state worth rebuilding.
func (s *Server) Recover(time.Time, uint64, int) {}

func (s *Server) IsRecovering() bool { return false }

// Replied reports whether the server has answered request id.
func (s *Server) Replied(id uint64) bool {
	_, ok := s.replied[id]
	return ok
}

// RepliedCount returns how many distinct requests were answered.
func (s *Server) RepliedCount() int { return len(s.replied) }

// Client sends numbered requests to server 0, advancing to the next
// request once the current one completes. With retries enabled it resends
// the in-flight request every retry interval.
type Client struct {
	id             model.NodeID
	server         model.NodeID
	currentRequest uint64
	totalRequests  uint64
	completed      map[uint64]struct{}

	lastRequestTime time.Time
	sentAny         bool
	retryInterval   time.Duration
	withRetries     bool
}

// NewClient creates echo client Client(index) that issues totalRequests
// requests against server 0.
func NewClient(index int, totalRequests uint64, retryInterval time.Duration, withRetries bool) *Client {
	return &Client{
		id:            model.Client(index),
		server:        model.Server(0),
		totalRequests: totalRequests,
		completed:     make(map[uint64]struct{}),
		retryInterval: retryInterval,
		withRetries:   withRetries,
	}
}

func (c *Client) ID() model.NodeID { return c.id }

func (c *Client) Tick(now time.Time) []Message {
	var messages []Message

	// Advance to the next request once the current one completed (or on the
	// very first tick).
	if (c.IsCompleted(c.currentRequest) || (c.currentRequest == 0 && !c.sentAny)) &&
		c.currentRequest < c.totalRequests {
		c.currentRequest++
		c.lastRequestTime = now
		c.sentAny = true
		messages = append(messages, c.request(c.currentRequest))
	}

	if c.withRetries && c.sentAny && now.Sub(c.lastRequestTime) >= c.retryInterval {
		messages = append(messages, c.request(c.currentRequest))
		c.lastRequestTime = now
	}

	return messages
}

func (c *Client) request(id uint64) Message {
	return Message{
		Kind:      KindRequest,
		RequestID: id,
		Data:      fmt.Sprintf("echo_%d", id),
		From:      c.id,
		To:        c.server,
	}
}

func (c *Client) ProcessMessage(msg Message, _ time.Time) []Message {
	if msg.Kind == KindResponse {
		c.completed[msg.RequestID] = struct{}{}
	}
	return nil
}

// Finished reports whether all requests have completed.
func (c *Client) Finished() bool {
	return uint64(len(c.completed)) == c.totalRequests
}

// IsCompleted reports whether request id has completed.
func (c *Client) IsCompleted(id uint64) bool {
	_, ok := c.completed[id]
	return ok
}

// CompletedCount returns how many distinct requests completed.
func (c *Client) CompletedCount() int { return len(c.completed) }

// CompletedIDs returns the completed request ids in ascending order.
func (c *Client) CompletedIDs() []uint64 {
	ids := make([]uint64, 0, len(c.completed))
	for id := range c.completed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CurrentRequest returns the highest request id issued so far.
func (c *Client) CurrentRequest() uint64 { return c.currentRequest }

// Checker asserts the protocol's core invariants: every request a client
// sees as completed was replied by some server, and the client's request
// counter never trails a completed id. It panics on violation, carrying
// the seed for replay.
type Checker struct{}

func (Checker) CheckInvariants(seed uint64, servers []*sim.NodeWrapper[Message, *Server], clients []*Client) {
	for _, client := range clients {
		for _, id := range client.CompletedIDs() {
			replied := false
			for _, srv := range servers {
				if srv.Node().Replied(id) {
					replied = true
					break
				}
			}
			if !replied {
				panic(fmt.Sprintf("echo invariant violated: request %d completed by %s but never replied by any server (seed %d)",
					id, client.ID(), seed))
			}
			if client.CurrentRequest() < id {
				panic(fmt.Sprintf("echo invariant violated: current request %d of %s is behind completed request %d (seed %d)",
					client.CurrentRequest(), client.ID(), id, seed))
			}
		}
	}
}
