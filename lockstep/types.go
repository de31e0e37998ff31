// Package lockstep is the composition root (spec.md §6's public API):
// it wires internal/pacer, internal/frameengine, internal/syncproto,
// internal/roster, internal/consistency, internal/transport and
// internal/replay behind the Offline/Networked/ReplayPlayback mode
// machine a host embeds.
//
// Grounded on internal/engine.Engine's composition-root shape: VM/
// renderer/physics/audio wired behind one façade with a single
// eventbus.Bus host code subscribes to across cart reloads, generalized
// here to wire the lockstep subsystems behind the same kind of façade,
// with the mode machine replacing cart-reload as the
// event-subscriptions-survive-a-swap discipline (spec.md §4.10, §9's
// "discards the prior engine and constructs a fresh one with the same
// event subscriptions").
package lockstep

import (
	"github.com/google/uuid"

	"github.com/lockstepgg/lockstep-engine/internal/command"
	"github.com/lockstepgg/lockstep-engine/internal/config"
)

// Mode is the engine's current operating mode (spec.md §4.10).
type Mode int

const (
	Offline Mode = iota
	Networked
	ReplayPlayback
)

func (m Mode) String() string {
	switch m {
	case Offline:
		return "offline"
	case Networked:
		return "networked"
	case ReplayPlayback:
		return "replay-playback"
	default:
		return "unknown"
	}
}

// Command is the public, value-copied view of one gameplay input
// (spec.md §3).
type Command struct {
	CommandID     uint32
	PlayerID      int32
	Content       []byte
	ExecutionTime float64
}

func commandFrom(c command.Command) Command {
	return Command{
		CommandID:     c.CommandID,
		PlayerID:      c.PlayerID,
		Content:       c.Content,
		ExecutionTime: c.ExecutionTime,
	}
}

// Frame is the public, value-copied view of one simulation step
// (spec.md §3).
type Frame struct {
	CurrentTime     float64
	ValidatedTime   float64
	Commands        []Command
	ConsistencyData []byte
}

// PlayerState is the value-copied snapshot Players() returns per peer
// (spec.md §5's "getPlayers() returns value-copied snapshots of public
// fields").
type PlayerState struct {
	PeerID            uuid.UUID
	PlayerID          int32
	IsLocal           bool
	LatencyMs         float64
	SynchronizedUntil float64
	LastCommandID     uint32
}

// ConsistencyCheckEvent is the payload of onConsistencyCheck.
type ConsistencyCheckEvent struct {
	GameplayTime float64
	Hashes       map[int32][]byte
}

// RollbackContext is the payload of onRollback. The engine declares
// this event and never emits it itself (spec.md §9's "rollback event
// exists but no implementation") — it exists so a host subscriber can
// wire rollback logic of its own against a stable hook.
type RollbackContext struct {
	RestoredFrame float64
}

// Config carries every tunable spec.md §6 names, plus the ring-buffer
// capacities spec.md §3 fixes.
type Config struct {
	FixedDeltaTimeSeconds     float64
	MinDelaySeconds           float64
	MaxDelaySeconds           float64
	DelayMarginSeconds        float64
	MinPauseDelayOnSlowAdjust float64

	LatencySamples             int
	ConsistencyHistoryCapacity int
}

// DefaultConfig returns the literal tunables spec.md §6 specifies.
func DefaultConfig() Config {
	return fromOptions(config.Defaults())
}

// LoadConfig returns DefaultConfig with any LOCKSTEP_* environment
// overrides applied (internal/config's Load), for hosts that want the
// same env-var tuning knobs the rest of the module's tooling uses.
func LoadConfig() Config {
	return fromOptions(config.Load())
}

func fromOptions(o config.Options) Config {
	return Config{
		FixedDeltaTimeSeconds:     o.FixedDeltaTimeSeconds,
		MinDelaySeconds:           o.MinDelaySeconds,
		MaxDelaySeconds:           o.MaxDelaySeconds,
		DelayMarginSeconds:        o.DelayMarginSeconds,
		MinPauseDelayOnSlowAdjust: o.MinPauseDelayOnSlowAdjust,

		LatencySamples:             o.LatencySamples,
		ConsistencyHistoryCapacity: o.ConsistencyHistory,
	}
}
