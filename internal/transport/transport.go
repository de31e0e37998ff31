// Package transport provides the peer mesh the sync protocol sends
// over: an unreliable-sequenced primitive and a reliable primitive,
// both keyed by opaque peer id (spec.md's "Deliberately OUT OF SCOPE"
// transport mesh, made concrete here since a runnable module needs one).
//
// Grounded on internal/network/network.go's Connection interface
// (Send/Close/IsConnected/PlayerID), generalized from a single
// host-authoritative connection map to a symmetric mesh where every
// peer can address every other peer directly.
package transport

import "github.com/google/uuid"

// Handler receives one inbound message: the sender, the route name
// (spec.md §6's literal route strings), and the raw payload.
type Handler func(from uuid.UUID, route string, payload []byte)

// Mesh is the transport-level dependency the sync protocol is built
// against. SendUnreliable models an unreliable-sequenced send (newer
// messages on the same route may arrive before, or instead of, older
// ones); SendReliable models an ordered, guaranteed-delivery send.
type Mesh interface {
	LocalPeerID() uuid.UUID
	SendUnreliable(to uuid.UUID, route string, payload []byte) error
	SendReliable(to uuid.UUID, route string, payload []byte) error
	OnMessage(h Handler)
}
