// Package frameengine implements the per-tick simulation step (spec.md
// §4.3), local-command admission (§4.4), and the pause-state and
// late-join state machines (§4.10), publishing every lifecycle event
// through an eventbus.Bus.
//
// Grounded on internal/engine/engine.go's bus.Subscribe("tick", ...)
// handler, which runs physics-step → network-frame-update →
// state-machine-update/draw as one ordered sequence of bus
// publications per host tick; generalized here into the roster-drain →
// late-join-check → command-drain → onStep/onEndFrame ordering §4.3
// specifies.
package frameengine

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/lockstepgg/lockstep-engine/internal/clock"
	"github.com/lockstepgg/lockstep-engine/internal/command"
	"github.com/lockstepgg/lockstep-engine/internal/eventbus"
	"github.com/lockstepgg/lockstep-engine/internal/player"
	"github.com/lockstepgg/lockstep-engine/internal/replay"
	"github.com/lockstepgg/lockstep-engine/internal/roster"
	"github.com/lockstepgg/lockstep-engine/internal/syncproto"
)

// PushCommand precondition refusals (spec.md §7's "Precondition refusal").
var (
	ErrNotInitialized  = errors.New("frameengine: engine not initialized")
	ErrEmptyPayload    = errors.New("frameengine: command payload is empty")
	ErrCommandTimeZero = errors.New("frameengine: command time not established yet")
	ErrPeerTooFarAhead = errors.New("frameengine: a remote peer has already passed this command's time")
)

// PauseState is the engine's emitted pause state (spec.md §4.10).
type PauseState int

const (
	Running PauseState = iota // δ > 0 and not explicitly paused
	Waiting                   // δ = 0, blocked on a peer
	Paused                    // explicit pause
)

func (s PauseState) String() string {
	switch s {
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Frame is one Δ-sized simulation step (spec.md §3).
type Frame struct {
	CurrentTime     float64
	ValidatedTime   float64
	Commands        []command.Command
	ConsistencyData []byte
}

// Config carries the admission-latency tunables (spec.md §6).
type Config struct {
	MinDelaySeconds    float64
	MaxDelaySeconds    float64
	DelayMarginSeconds float64
}

// Engine drives one session's simulation clock. It does not own the
// pacer (AdjustTick lives one level up, in the lockstep composition
// root) — Tick is handed an already-decided δ and advances by exactly
// that much.
type Engine struct {
	Bus     *eventbus.Bus
	Players *player.Table
	Roster  *roster.Sequencer
	Replay  *replay.Writer
	Now     clock.NowFunc
	Config  Config

	// ConsistencyHash, if set, is called after onStep to let the host
	// fill in Frame.ConsistencyData (spec.md §4.3 step 5: "supplied by
	// host subscriber via a hook after onStep").
	ConsistencyHash func(*Frame) []byte

	// RequestSnapshot is invoked exactly once, the tick a late-join
	// snapshot becomes due (spec.md §4.6 step 1). The host/sync layer
	// answers asynchronously by calling InstallSnapshot.
	RequestSnapshot func()

	currentTime        float64
	currentCommandTime float64

	initialized    bool
	initializing   bool
	started        bool
	paused         bool
	havePauseState bool
	lastPauseState PauseState

	lastFrame *Frame
}

// NewEngine returns an Engine ready to run from time zero, uninitialized.
func NewEngine(bus *eventbus.Bus, players *player.Table, rosterSeq *roster.Sequencer, cfg Config, now clock.NowFunc) *Engine {
	if now == nil {
		now = clock.System
	}
	return &Engine{
		Bus:     bus,
		Players: players,
		Roster:  rosterSeq,
		Config:  cfg,
		Now:     now,
	}
}

// CurrentTime is the currentTime() observer.
func (e *Engine) CurrentTime() float64 { return e.currentTime }

// CommandTime is the commandTime() observer: the earliest time a newly
// pushed local command is allowed to execute at.
func (e *Engine) CommandTime() float64 { return e.currentCommandTime }

// IsInitialized reports whether the late-join handshake has completed.
func (e *Engine) IsInitialized() bool { return e.initialized }

// Pause sets explicit pause state.
func (e *Engine) Pause(paused bool) { e.paused = paused }

// IsPaused reports explicit pause state (not Waiting).
func (e *Engine) IsPaused() bool { return e.paused }

// UpdateCommandTime recomputes currentCommandTime from current peer
// state (spec.md §4.4's "on each pacer step" update rule). The
// composition root calls this from its own Tick, just before Tick.
func (e *Engine) UpdateCommandTime() {
	remotes := e.Players.Remote()

	maxLatencyMs := 0.0
	h := 0.0
	haveRemote := false
	for _, p := range remotes {
		haveRemote = true
		if peerMax := p.MaxLatencyMs(); peerMax > maxLatencyMs {
			maxLatencyMs = peerMax
		}
		effectiveLatency := p.MaxLatencyMs() / 1000.0
		candidate := p.GameplayTimeSeconds + effectiveLatency
		if candidate > h {
			h = candidate
		}
	}
	if !haveRemote {
		h = 0
	}

	latency := clock.Clamp(maxLatencyMs/1000.0+e.Config.DelayMarginSeconds, e.Config.MinDelaySeconds, e.Config.MaxDelaySeconds)

	base := e.currentTime
	if h > base {
		base = h
	}
	candidate := base + latency
	if candidate > e.currentCommandTime {
		e.currentCommandTime = candidate
	}
}

// emitPauseState runs the §4.10 pause-state machine, firing
// onPauseStateChanged only when the resolved state differs from the
// last one emitted.
func (e *Engine) emitPauseState(delta float64) {
	state := Running
	switch {
	case e.paused:
		state = Paused
	case delta == 0:
		state = Waiting
	}
	if e.havePauseState && state == e.lastPauseState {
		return
	}
	e.havePauseState = true
	e.lastPauseState = state
	e.Bus.Publish(eventbus.OnPauseStateChanged, state)
}

// Tick advances the simulation by delta seconds (spec.md §4.3). Call
// UpdateCommandTime before Tick on every host-loop invocation,
// regardless of whether delta ends up zero.
func (e *Engine) Tick(delta float64) {
	e.Roster.Drain(e.Players, e.onRosterApplied)

	if !e.initialized && !e.initializing {
		e.maybeStartLateJoin()
	}

	e.emitPauseState(delta)

	if !e.initialized || delta == 0 {
		return
	}

	prev := e.currentTime
	frame := &Frame{CurrentTime: prev + delta}

	for _, p := range e.Players.ByPlayerID() {
		for {
			next := p.LastExecutedCommand.Peek(p.Commands)
			if next == nil || next.Cmd.ExecutionTime > frame.CurrentTime {
				break
			}
			cmd, _ := p.LastExecutedCommand.Advance(p.Commands)
			if cmd.ExecutionTime <= prev {
				log.Printf("[frameengine] desync: player %d command %d executionTime %v <= prev frame time %v",
					p.PlayerID, cmd.CommandID, cmd.ExecutionTime, prev)
				continue
			}
			frame.Commands = append(frame.Commands, cmd)
			if e.Replay != nil {
				if err := e.Replay.ExecuteCommand(frame.CurrentTime, cmd.PlayerID, int32(cmd.CommandID)); err != nil {
					log.Printf("[frameengine] replay write failed: %v", err)
				}
			}
		}
	}

	sort.Slice(frame.Commands, func(i, j int) bool {
		if frame.Commands[i].PlayerID != frame.Commands[j].PlayerID {
			return frame.Commands[i].PlayerID < frame.Commands[j].PlayerID
		}
		return frame.Commands[i].CommandID < frame.Commands[j].CommandID
	})

	e.currentTime = frame.CurrentTime
	frame.ValidatedTime = e.currentCommandTime

	if !e.started {
		e.started = true
		e.Bus.Publish(eventbus.OnStart, nil)
	}

	e.Bus.Publish(eventbus.OnStep, frame)
	if e.ConsistencyHash != nil {
		frame.ConsistencyData = e.ConsistencyHash(frame)
		if local := e.Players.Local(); local != nil {
			local.ConsistencyHistory.Push(player.ConsistencySample{
				GameplayTime: frame.CurrentTime,
				Hash:         frame.ConsistencyData,
			})
		}
	}
	e.lastFrame = frame

	if e.Replay != nil {
		if err := e.Replay.Frame(frame.CurrentTime); err != nil {
			log.Printf("[frameengine] replay write failed: %v", err)
		}
	}
}

// LastConsistencyData returns the ConsistencyData of the most recently
// produced frame (set via the ConsistencyHash hook during Tick), or nil
// if Tick hasn't produced a frame yet this generation.
func (e *Engine) LastConsistencyData() []byte {
	if e.lastFrame == nil {
		return nil
	}
	return e.lastFrame.ConsistencyData
}

// EndFrame emits onEndFrame for the most recently produced frame, once
// the host's own per-frame work (rendering, simulation stepping driven
// by onStep) has finished (spec.md §4.3 step 6, §6's separate
// tick/endFrame operations). A no-op if Tick hasn't produced a frame
// since the last EndFrame call.
func (e *Engine) EndFrame() {
	if e.lastFrame == nil {
		return
	}
	e.Bus.Publish(eventbus.OnEndFrame, e.lastFrame)
	e.lastFrame = nil
}

// onRosterApplied runs once per roster update Drain actually applies:
// it records the UpdatePlayerList replay entry and fires
// onPlayerListChanged (spec.md §4.7's "every applied update writes an
// UpdatePlayerList record" and the "emits onPlayerListChanged exactly N
// times" testable property).
func (e *Engine) onRosterApplied(update syncproto.PlayersUpdateCommand) {
	if e.Replay != nil {
		if err := e.Replay.UpdatePlayerList(e.currentTime, update); err != nil {
			log.Printf("[frameengine] replay write failed: %v", err)
		}
	}
	e.Bus.Publish(eventbus.OnPlayerListChanged, nil)
}

// maybeStartLateJoin implements spec.md §4.6 step 1 and step 4.
func (e *Engine) maybeStartLateJoin() {
	remotes := e.Players.Remote()
	for _, p := range remotes {
		if !p.IsSynchronized {
			return
		}
	}
	e.initializing = true
	if len(remotes) == 0 {
		e.InstallSnapshot(0, nil)
		return
	}
	if e.RequestSnapshot != nil {
		e.RequestSnapshot()
	}
}

// InstallSnapshot completes the late-join handshake (spec.md §4.6 step
// 3), or bootstraps single-player mode (step 4). It publishes
// onInstallSnapshot on Bus with the opaque snapshot bytes so the host
// can restore its own state. currentCommandTime is raised to gameTime
// if it is behind it, and never lowered.
func (e *Engine) InstallSnapshot(gameTime float64, data []byte) {
	e.currentTime = gameTime
	if e.currentCommandTime < gameTime {
		e.currentCommandTime = gameTime
	}

	e.Bus.Publish(eventbus.OnInstallSnapshot, data)

	for _, p := range e.Players.Remote() {
		for {
			next := p.LastExecutedCommand.Peek(p.Commands)
			if next == nil || next.Cmd.ExecutionTime > gameTime {
				break
			}
			p.LastExecutedCommand.Advance(p.Commands)
		}
	}

	if e.Replay != nil {
		if err := e.Replay.LoadSnapshot(gameTime, data); err != nil {
			log.Printf("[frameengine] replay write failed: %v", err)
		}
	}

	e.initialized = true
	e.initializing = false
}

// PushCommand implements spec.md §4.4's local-command admission.
func (e *Engine) PushCommand(content []byte) (int32, error) {
	if !e.initialized {
		return -1, ErrNotInitialized
	}
	if len(content) == 0 {
		return -1, ErrEmptyPayload
	}

	t := e.currentCommandTime
	if t == 0 {
		return -1, ErrCommandTimeZero
	}

	local := e.Players.Local()
	if local == nil {
		return -1, fmt.Errorf("frameengine: %w: no local player registered", ErrNotInitialized)
	}

	for _, p := range e.Players.Remote() {
		if p.GameplayTimeSeconds > t {
			return -1, ErrPeerTooFarAhead
		}
	}

	id := uint32(1)
	if last := local.Commands.Last(); last != nil {
		id = last.Cmd.CommandID + 1
	}

	cmd := command.Command{
		CommandID:     id,
		PlayerID:      local.PlayerID,
		PeerID:        local.PeerID,
		Content:       append([]byte(nil), content...),
		ExecutionTime: t,
	}
	if err := local.Commands.Insert(cmd); err != nil {
		return -1, fmt.Errorf("frameengine: insert local command: %w", err)
	}

	for _, p := range e.Players.Remote() {
		p.LastCommandUpdateOnMs = 0
	}

	if e.Replay != nil {
		if err := e.Replay.AddCommand(e.currentTime, local.PlayerID, t, int32(id), cmd.Content); err != nil {
			log.Printf("[frameengine] replay write failed: %v", err)
		}
	}

	return int32(id), nil
}
