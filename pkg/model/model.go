// Package model defines the plug-in surface between user protocols and the
// simulation engine: node identities, the message contract, and the
// behavioral interfaces implemented by servers, clients and invariant
// checkers.
package model

import (
	"fmt"
	"time"
)

// NodeKind distinguishes server replicas from clients.
type NodeKind uint8

const (
	// KindServer identifies a server replica.
	KindServer NodeKind = iota
	// KindClient identifies a client.
	KindClient
)

func (k NodeKind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// NodeID is a tagged node identifier. Indices are dense from zero,
// separately for servers and clients. NodeID is comparable and totally
// ordered (kind first, then index), so it can be used as a map key and as
// the canonical endpoint in link keys.
type NodeID struct {
	Kind  NodeKind
	Index int
}

// Server returns the NodeID of server replica i.
func Server(i int) NodeID {
	return NodeID{Kind: KindServer, Index: i}
}

// Client returns the NodeID of client i.
func Client(i int) NodeID {
	return NodeID{Kind: KindClient, Index: i}
}

// Compare orders NodeIDs by kind, then index. It returns -1, 0 or 1.
func (n NodeID) Compare(other NodeID) int {
	if n.Kind != other.Kind {
		if n.Kind < other.Kind {
			return -1
		}
		return 1
	}
	switch {
	case n.Index < other.Index:
		return -1
	case n.Index > other.Index:
		return 1
	default:
		return 0
	}
}

// Less reports whether n orders before other.
func (n NodeID) Less(other NodeID) bool {
	return n.Compare(other) < 0
}

func (n NodeID) String() string {
	return fmt.Sprintf("%s-%d", n.Kind, n.Index)
}

// ProtocolMessage is the engine-side contract for protocol messages. The
// engine never inspects payloads; it only routes by source and destination.
// Implementations must be value-copyable: the engine duplicates messages
// when the network does.
type ProtocolMessage interface {
	// Source returns the sender of the message.
	Source() NodeID

	// Destination returns the receiver of the message.
	Destination() NodeID
}

// DeterministicNode is a server replica under simulation. All time is
// injected; implementations must not consult wall clocks or their own
// randomness, or runs stop being reproducible.
type DeterministicNode[M ProtocolMessage] interface {
	// ID returns the node's identity. Must be Server(i) with i dense from 0.
	ID() NodeID

	// Tick performs periodic work and returns messages to send.
	Tick(now time.Time) []M

	// ProcessMessage handles one delivered message and returns messages to
	// send in response.
	ProcessMessage(msg M, now time.Time) []M

	// Recover is invoked on every crash-to-normal transition. The nonce is a
	// fresh engine-drawn 64-bit value the node may use to randomize its
	// post-crash identity.
	Recover(now time.Time, nonce uint64, replicaCount int)

	// IsRecovering reports whether the node is still rebuilding state and
	// not yet ready to serve. A node that never crashes returns false.
	IsRecovering() bool
}

// DeterministicClient drives work against the simulated servers. Clients
// never crash.
type DeterministicClient[M ProtocolMessage] interface {
	// ID returns the client's identity. Must be Client(i) with i dense from 0.
	ID() NodeID

	// Tick performs periodic work and returns messages to send.
	Tick(now time.Time) []M

	// ProcessMessage handles one delivered message and returns messages to
	// send in response.
	ProcessMessage(msg M, now time.Time) []M

	// Finished reports whether the client has completed all of its work. The
	// simulation ends successfully once every client reports true.
	Finished() bool
}
