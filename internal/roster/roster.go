// Package roster applies server-broadcast player-roster deltas in
// strict id order (spec.md §4.7), buffering anything that arrives
// ahead of the next expected id and applying gap-filled runs once the
// hole closes.
//
// Grounded on internal/network/network.go's onPlayerJoined/onPlayerLeft
// callback pair, generalized from "apply immediately, whatever order
// the host calls us in" to a gap-buffering sequencer, since spec.md's
// RosterUpdate stream is only eventually, not always immediately,
// contiguous.
package roster

import (
	"github.com/google/uuid"

	"github.com/lockstepgg/lockstep-engine/internal/player"
	"github.com/lockstepgg/lockstep-engine/internal/syncproto"
)

// Sequencer buffers RosterUpdates in pendingRosterUpdates and applies
// them only once updateId == currentPlayersUpdateId + 1 (spec.md §4.7).
type Sequencer struct {
	currentUpdateID int32
	pending         []syncproto.PlayersUpdateCommand

	localPeerID    uuid.UUID
	latencySamples int
	consistencyCap int
}

// NewSequencer returns a Sequencer that recognizes localPeerID as the
// local player on Add, and sizes any player.State it creates with the
// given ring-buffer capacities.
func NewSequencer(localPeerID uuid.UUID, latencySamples, consistencyCap int) *Sequencer {
	return &Sequencer{
		localPeerID:    localPeerID,
		latencySamples: latencySamples,
		consistencyCap: consistencyCap,
	}
}

// CurrentUpdateID reports the id of the most recently applied update.
func (s *Sequencer) CurrentUpdateID() int32 { return s.currentUpdateID }

// ApplySnapshot resets the table to exactly the roster named in a
// PlayersSnapshotInstallCommand and fast-forwards currentUpdateID, per
// spec.md §4.7's "a snapshot resets the map and sets
// currentPlayersUpdateId". Any buffered updates at or below the new id
// are now stale and are dropped.
func (s *Sequencer) ApplySnapshot(tbl *player.Table, snap syncproto.PlayersSnapshotInstallCommand) {
	tbl.Reset()
	for playerID, peerID := range snap.Players {
		st := player.NewState(peerID, playerID, s.latencySamples, s.consistencyCap)
		if peerID == s.localPeerID {
			st.IsLocal = true
			st.IsSynchronized = true
		}
		tbl.Put(st)
	}
	s.currentUpdateID = snap.UpdateID
	s.purgeStale()
}

// Buffer enqueues an update for later application by Drain. A stale
// update (id at or below what's already applied) is dropped silently
// per spec.md §4.11; everything else, however far ahead, is retained.
func (s *Sequencer) Buffer(update syncproto.PlayersUpdateCommand) {
	if update.UpdateID <= s.currentUpdateID {
		return
	}
	s.pending = append(s.pending, update)
}

// Drain applies every update that now forms a contiguous run starting
// at currentUpdateID+1, in order, and returns the count applied — the
// number of times a caller should fire onPlayerListChanged. onApplied,
// if non-nil, is invoked once per applied update (for replay recording).
func (s *Sequencer) Drain(tbl *player.Table, onApplied func(syncproto.PlayersUpdateCommand)) int {
	applied := 0
	for {
		idx := s.indexOfNext()
		if idx < 0 {
			break
		}
		update := s.pending[idx]
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)

		s.currentUpdateID = update.UpdateID
		s.applyOne(tbl, update)
		if onApplied != nil {
			onApplied(update)
		}
		applied++
	}
	return applied
}

func (s *Sequencer) indexOfNext() int {
	want := s.currentUpdateID + 1
	for i, u := range s.pending {
		if u.UpdateID == want {
			return i
		}
	}
	return -1
}

func (s *Sequencer) applyOne(tbl *player.Table, update syncproto.PlayersUpdateCommand) {
	switch update.CommandType {
	case syncproto.RosterAdd:
		st := player.NewState(update.PlayerSessionID, update.PlayerID, s.latencySamples, s.consistencyCap)
		if update.PlayerSessionID == s.localPeerID {
			st.IsLocal = true
			st.IsSynchronized = true
		}
		tbl.Put(st)
	case syncproto.RosterRemove:
		tbl.Delete(update.PlayerSessionID)
	}
}

// purgeStale rebuilds pending from scratch, keeping only updates still
// ahead of currentUpdateID. This resolves the "erase while iterating
// without advancing the iterator" bug in the original roster-removal
// code: rather than mutating pending in place while ranging over it,
// it appends survivors into pending's own backing array from index 0,
// which is safe because the read index never trails the write index.
func (s *Sequencer) purgeStale() {
	out := s.pending[:0]
	for _, u := range s.pending {
		if u.UpdateID > s.currentUpdateID {
			out = append(out, u)
		}
	}
	s.pending = out
}
