package transport

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LoopbackHub wires a set of in-process peers together, dispatching
// sends synchronously — matching spec.md §5's single-threaded
// cooperative model, where transport callbacks are expected on the same
// executor as the host loop. Used by tests and cmd/lockstep-demo to run
// several engines in one process without a real network.
type LoopbackHub struct {
	mu      sync.Mutex
	members map[uuid.UUID]*LoopbackMesh
}

// NewLoopbackHub returns an empty hub.
func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{members: make(map[uuid.UUID]*LoopbackMesh)}
}

// Join registers a new peer on the hub and returns its Mesh handle.
func (h *LoopbackHub) Join(peerID uuid.UUID) *LoopbackMesh {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := &LoopbackMesh{hub: h, local: peerID}
	h.members[peerID] = m
	return m
}

// Leave removes a peer; further sends to it return an error.
func (h *LoopbackHub) Leave(peerID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, peerID)
}

func (h *LoopbackHub) dispatch(from, to uuid.UUID, route string, payload []byte) error {
	h.mu.Lock()
	target, ok := h.members[to]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: loopback peer %s not joined", to)
	}
	target.mu.RLock()
	handler := target.handler
	target.mu.RUnlock()
	if handler != nil {
		handler(from, route, payload)
	}
	return nil
}

// LoopbackMesh is one peer's Mesh handle on a LoopbackHub.
type LoopbackMesh struct {
	hub   *LoopbackHub
	local uuid.UUID

	mu      sync.RWMutex
	handler Handler
}

func (m *LoopbackMesh) LocalPeerID() uuid.UUID { return m.local }

func (m *LoopbackMesh) SendUnreliable(to uuid.UUID, route string, payload []byte) error {
	return m.hub.dispatch(m.local, to, route, payload)
}

func (m *LoopbackMesh) SendReliable(to uuid.UUID, route string, payload []byte) error {
	return m.hub.dispatch(m.local, to, route, payload)
}

func (m *LoopbackMesh) OnMessage(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}
