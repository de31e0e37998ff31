package transport

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// envelope is the outer framing for every message sent over a WSMesh
// connection: a JSON wrapper carrying the sender's peer id and the
// route's already-msgpack-encoded payload.
type envelope struct {
	From    uuid.UUID `json:"from"`
	Route   string    `json:"route"`
	Payload []byte    `json:"payload"`
}

// WSMesh is a Mesh backed by one *websocket.Conn per peer. WebSocket
// frames are themselves ordered and reliably delivered, so
// SendUnreliable and SendReliable behave identically here: the sync
// protocol's own tolerance for stale or duplicate frames (spec.md
// §4.11) means nothing breaks if "unreliable" sends happen to arrive
// in order anyway.
type WSMesh struct {
	local uuid.UUID

	mu    sync.RWMutex
	conns map[uuid.UUID]*websocket.Conn

	handlerMu sync.RWMutex
	handler   Handler
}

// NewWSMesh returns a mesh identifying itself with localPeerID.
func NewWSMesh(localPeerID uuid.UUID) *WSMesh {
	return &WSMesh{
		local: localPeerID,
		conns: make(map[uuid.UUID]*websocket.Conn),
	}
}

func (m *WSMesh) LocalPeerID() uuid.UUID { return m.local }

// AddConn registers an already-established connection to peer and
// starts pumping inbound frames to the registered Handler. Call
// OnMessage before AddConn so no early frame is dropped.
func (m *WSMesh) AddConn(peer uuid.UUID, conn *websocket.Conn) {
	m.mu.Lock()
	m.conns[peer] = conn
	m.mu.Unlock()

	go m.readLoop(peer, conn)
}

// RemoveConn closes and forgets the connection to peer, if any.
func (m *WSMesh) RemoveConn(peer uuid.UUID) {
	m.mu.Lock()
	conn, ok := m.conns[peer]
	delete(m.conns, peer)
	m.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

func (m *WSMesh) readLoop(peer uuid.UUID, conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			log.Printf("[transport] peer %s read closed: %v", peer, err)
			m.RemoveConn(peer)
			return
		}

		m.handlerMu.RLock()
		h := m.handler
		m.handlerMu.RUnlock()
		if h != nil {
			h(env.From, env.Route, env.Payload)
		}
	}
}

func (m *WSMesh) send(to uuid.UUID, route string, payload []byte) error {
	m.mu.RLock()
	conn, ok := m.conns[to]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no websocket connection to peer %s", to)
	}

	env := envelope{From: m.local, Route: route, Payload: payload}
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("transport: write to peer %s: %w", to, err)
	}
	return nil
}

func (m *WSMesh) SendUnreliable(to uuid.UUID, route string, payload []byte) error {
	return m.send(to, route, payload)
}

func (m *WSMesh) SendReliable(to uuid.UUID, route string, payload []byte) error {
	return m.send(to, route, payload)
}

func (m *WSMesh) OnMessage(h Handler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handler = h
}
