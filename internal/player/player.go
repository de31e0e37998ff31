// Package player holds per-participant lockstep state (spec.md §3) and
// an ordered table keyed by opaque peer id.
//
// Grounded on internal/network/network.go's map-of-peer pattern
// (connections map[int]Connection, playerInputs map[int]map[int]bool),
// generalized to the richer per-player bookkeeping spec.md §3 requires
// and re-keyed on an opaque 16-byte peer id (google/uuid) instead of a
// small integer, per spec.md's PeerID/SessionId.
package player

import (
	"sort"

	"github.com/google/uuid"

	"github.com/lockstepgg/lockstep-engine/internal/command"
	"github.com/lockstepgg/lockstep-engine/internal/ringbuf"
)

// PeerID is the opaque, transport-level identifier for a participant.
type PeerID = uuid.UUID

// ConsistencySample is one entry in a player's consistency history (§3).
type ConsistencySample struct {
	GameplayTime float64
	Hash         []byte
}

// State is the engine's bookkeeping for one participant (spec.md §3).
type State struct {
	PeerID   PeerID
	PlayerID int32
	IsLocal  bool

	Latency *ringbuf.SampleBuffer // rolling latencyMs samples, capacity 128

	GameplayTimeSeconds          float64
	ValidatedGameplayTimeSeconds float64
	DeltaTimePerFrameSeconds     float64

	SentOnMs     int64 // wall clock of the latest frame update sent
	ReceivedOnMs int64 // wall clock this peer's latest frame update arrived

	LastCommandUpdateOnMs int64 // wall clock we last pushed commands to this peer

	// Commands is this player's own command list (local or remote
	// origin, depending on whether State.IsLocal is set).
	Commands *command.List

	// LastSentCommand tracks, for a *remote* peer's State, which of the
	// local player's commands that peer has confirmed receiving (§4.1).
	LastSentCommand *command.Cursor
	// LastExecutedCommand advances during Tick, across this player's
	// own Commands list (§4.3).
	LastExecutedCommand *command.Cursor

	ConsistencyHistory *ringbuf.Ring[ConsistencySample]

	IsSynchronized bool
}

// NewState returns a zeroed State ready for use, with its ring buffers
// sized per the given config capacities.
func NewState(peerID PeerID, playerID int32, latencySamples, consistencyCap int) *State {
	return &State{
		PeerID:              peerID,
		PlayerID:            playerID,
		Latency:             ringbuf.NewSampleBuffer(latencySamples),
		Commands:            command.New(),
		LastSentCommand:     command.NewCursor(),
		LastExecutedCommand: command.NewCursor(),
		ConsistencyHistory:  ringbuf.NewRing[ConsistencySample](consistencyCap),
	}
}

// AverageLatencyMs returns the player's rolling average one-way latency.
func (s *State) AverageLatencyMs() float64 { return s.Latency.Average() }

// MaxLatencyMs returns the player's rolling max one-way latency.
func (s *State) MaxLatencyMs() float64 { return s.Latency.Max() }

// Table is peerId → *State, with deterministic iteration by ascending
// numeric playerId (spec.md §3 "ordered iteration by numeric player id").
type Table struct {
	byPeer map[PeerID]*State
}

// New returns an empty player table.
func New() *Table {
	return &Table{byPeer: make(map[PeerID]*State)}
}

// Put inserts or replaces the state for a peer.
func (t *Table) Put(s *State) { t.byPeer[s.PeerID] = s }

// Get returns the state for a peer, or nil if absent.
func (t *Table) Get(peerID PeerID) *State { return t.byPeer[peerID] }

// Delete removes a peer's state.
func (t *Table) Delete(peerID PeerID) { delete(t.byPeer, peerID) }

// Len returns the number of tracked players.
func (t *Table) Len() int { return len(t.byPeer) }

// Reset drops all players.
func (t *Table) Reset() { t.byPeer = make(map[PeerID]*State) }

// ByPlayerID returns all tracked players sorted by ascending PlayerID —
// the order spec.md §4.3 requires when draining commands into a frame.
func (t *Table) ByPlayerID() []*State {
	out := make([]*State, 0, len(t.byPeer))
	for _, s := range t.byPeer {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Remote returns every tracked player that isn't the local player, in
// PlayerID order.
func (t *Table) Remote() []*State {
	all := t.ByPlayerID()
	out := all[:0:0]
	for _, s := range all {
		if !s.IsLocal {
			out = append(out, s)
		}
	}
	return out
}

// GetByPlayerID returns the tracked player with the given numeric id, or
// nil if none is tracked. Used by replay playback, where records carry
// playerId rather than the opaque peer id.
func (t *Table) GetByPlayerID(playerID int32) *State {
	for _, s := range t.byPeer {
		if s.PlayerID == playerID {
			return s
		}
	}
	return nil
}

// Local returns the local player's state, or nil if none is tracked yet.
func (t *Table) Local() *State {
	for _, s := range t.byPeer {
		if s.IsLocal {
			return s
		}
	}
	return nil
}
