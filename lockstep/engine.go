package lockstep

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/google/uuid"

	"github.com/lockstepgg/lockstep-engine/internal/app"
	"github.com/lockstepgg/lockstep-engine/internal/clock"
	"github.com/lockstepgg/lockstep-engine/internal/command"
	"github.com/lockstepgg/lockstep-engine/internal/consistency"
	"github.com/lockstepgg/lockstep-engine/internal/eventbus"
	"github.com/lockstepgg/lockstep-engine/internal/frameengine"
	"github.com/lockstepgg/lockstep-engine/internal/pacer"
	"github.com/lockstepgg/lockstep-engine/internal/player"
	"github.com/lockstepgg/lockstep-engine/internal/replay"
	"github.com/lockstepgg/lockstep-engine/internal/roster"
	"github.com/lockstepgg/lockstep-engine/internal/syncproto"
	"github.com/lockstepgg/lockstep-engine/internal/transport"
)

// Engine is the host-facing façade (spec.md §6). Bus is constructed once
// and never replaced; every mode transition discards and rebuilds the
// internal frameengine.Engine (and its own private bus) behind it, so
// host subscriptions on Bus survive a mode swap untouched.
type Engine struct {
	Bus *eventbus.Bus

	cfg Config
	now clock.NowFunc

	mode        Mode
	localPeerID uuid.UUID

	players  *player.Table
	rosterSq *roster.Sequencer
	fe       *frameengine.Engine
	pc       *pacer.Pacer
	checker  *consistency.Checker

	sync *syncproto.Sync
	mesh transport.Mesh

	replayWriter *replay.Writer
	replayReader *replay.Reader

	lastTargetTime float64

	onCreateSnapshot  func() []byte
	consistencyHashFn func(Frame) []byte
}

// New returns an Engine in Offline mode, running a real single-player
// simulation from time zero (spec.md §4.6 step 4's zero-remotes
// bootstrap).
func New(cfg Config, now clock.NowFunc) *Engine {
	if now == nil {
		now = clock.System
	}
	e := &Engine{Bus: eventbus.New(), cfg: cfg, now: now}
	e.resetOffline()
	return e
}

// Mode reports the engine's current operating mode.
func (e *Engine) Mode() Mode { return e.mode }

// resetOffline tears down whatever mode the engine was in and rebuilds
// a fresh single-player session (spec.md §9's "discards the prior
// engine and constructs a fresh one with the same event subscriptions";
// Bus itself is never touched here).
func (e *Engine) resetOffline() {
	app.NextGeneration()

	e.mode = Offline
	e.mesh = nil
	e.sync = nil
	e.replayReader = nil

	e.players = player.New()
	local := player.NewState(uuid.New(), 0, e.cfg.LatencySamples, e.cfg.ConsistencyHistoryCapacity)
	local.IsLocal = true
	local.IsSynchronized = true
	e.players.Put(local)
	e.localPeerID = local.PeerID

	e.rosterSq = roster.NewSequencer(e.localPeerID, e.cfg.LatencySamples, e.cfg.ConsistencyHistoryCapacity)
	e.checker = consistency.NewChecker(e.cfg.FixedDeltaTimeSeconds)
	e.pc = pacer.New(e.cfg.FixedDeltaTimeSeconds, e.cfg.MinPauseDelayOnSlowAdjust)
	e.replayWriter = replay.NewWriter(replay.FileHeader{PlayerID: local.PlayerID})

	e.fe = e.newFrameEngine()
}

// Reset re-enters Offline mode, discarding any networked session or
// replay in progress.
func (e *Engine) Reset() { e.resetOffline() }

// newFrameEngine builds a frameengine.Engine wired to the composition
// root's current players/roster/pacer state, on its own private bus:
// every event it publishes is translated to its public-API shape and
// re-published on e.Bus, which is what lets e.Bus outlive the swap.
func (e *Engine) newFrameEngine() *frameengine.Engine {
	feBus := eventbus.New()
	fecfg := frameengine.Config{
		MinDelaySeconds:    e.cfg.MinDelaySeconds,
		MaxDelaySeconds:    e.cfg.MaxDelaySeconds,
		DelayMarginSeconds: e.cfg.DelayMarginSeconds,
	}
	fe := frameengine.NewEngine(feBus, e.players, e.rosterSq, fecfg, e.now)
	fe.Replay = e.replayWriter
	fe.RequestSnapshot = e.requestSnapshot
	fe.ConsistencyHash = func(f *frameengine.Frame) []byte {
		if e.consistencyHashFn == nil {
			return nil
		}
		return e.consistencyHashFn(toPublicFrame(f))
	}

	feBus.Subscribe(eventbus.OnStep, func(v any) {
		e.Bus.Publish(eventbus.OnStep, toPublicFrame(v.(*frameengine.Frame)))
	})
	feBus.Subscribe(eventbus.OnEndFrame, func(v any) {
		e.Bus.Publish(eventbus.OnEndFrame, toPublicFrame(v.(*frameengine.Frame)))
	})
	feBus.Subscribe(eventbus.OnStart, func(v any) { e.Bus.Publish(eventbus.OnStart, nil) })
	feBus.Subscribe(eventbus.OnPlayerListChanged, func(v any) {
		e.syncReplayPlayerID()
		e.Bus.Publish(eventbus.OnPlayerListChanged, nil)
	})
	feBus.Subscribe(eventbus.OnInstallSnapshot, func(v any) { e.Bus.Publish(eventbus.OnInstallSnapshot, v) })
	feBus.Subscribe(eventbus.OnPauseStateChanged, func(v any) {
		e.Bus.Publish(eventbus.OnPauseStateChanged, PauseState(v.(frameengine.PauseState)))
	})

	return fe
}

func toPublicFrame(f *frameengine.Frame) Frame {
	cmds := make([]Command, len(f.Commands))
	for i, c := range f.Commands {
		cmds[i] = commandFrom(c)
	}
	return Frame{
		CurrentTime:     f.CurrentTime,
		ValidatedTime:   f.ValidatedTime,
		Commands:        cmds,
		ConsistencyData: f.ConsistencyData,
	}
}

// PauseState mirrors frameengine.PauseState on the public API surface
// (spec.md §4.10); the two share the same underlying ordering, so
// converting between them is a direct int cast.
type PauseState int

const (
	Running PauseState = iota
	Waiting
	Paused
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

// Attach leaves Offline/ReplayPlayback and enters Networked mode over
// the given Mesh (spec.md §4.5, §4.6). The roster starts empty: it is
// populated once a PlayersSnapshotInstallCommand arrives over
// "lockstepPlayers.installSnapshot", which is outside this engine's
// scope to originate (spec.md's session-control channel is
// deliberately out of scope).
func (e *Engine) Attach(mesh transport.Mesh) {
	app.NextGeneration()

	e.mode = Networked
	e.mesh = mesh
	e.replayReader = nil
	e.localPeerID = mesh.LocalPeerID()

	e.players = player.New()
	e.rosterSq = roster.NewSequencer(e.localPeerID, e.cfg.LatencySamples, e.cfg.ConsistencyHistoryCapacity)
	e.checker = consistency.NewChecker(e.cfg.FixedDeltaTimeSeconds)
	e.pc = pacer.New(e.cfg.FixedDeltaTimeSeconds, e.cfg.MinPauseDelayOnSlowAdjust)
	e.replayWriter = replay.NewWriter(replay.FileHeader{})

	e.sync = syncproto.NewSync(mesh, e.players, e.now, e.checker)
	e.sync.CurrentTime = func() float64 { return e.fe.CurrentTime() }
	e.sync.OnConsistencyCheck = func(r *consistency.Result) {
		e.Bus.Publish(eventbus.OnConsistencyCheck, ConsistencyCheckEvent{GameplayTime: r.GameplayTime, Hashes: r.Hashes})
	}
	e.sync.OnRequestSnapshot = e.handleSnapshotRequest
	e.sync.OnSnapshot = func(gameTime float64, data []byte) { e.fe.InstallSnapshot(gameTime, data) }
	e.sync.OnRosterUpdate = func(u syncproto.PlayersUpdateCommand) { e.rosterSq.Buffer(u) }
	e.sync.OnRosterSnapshot = func(snap syncproto.PlayersSnapshotInstallCommand) {
		e.rosterSq.ApplySnapshot(e.players, snap)
		e.syncReplayPlayerID()
	}
	e.sync.OnCommandReceived = func(playerID int32, cmd command.Command) {
		if e.replayWriter != nil {
			if err := e.replayWriter.AddCommand(e.fe.CurrentTime(), playerID, cmd.ExecutionTime, int32(cmd.CommandID), cmd.Content); err != nil {
				log.Printf("[lockstep] replay write failed: %v", err)
			}
		}
	}

	e.fe = e.newFrameEngine()
}

// Detach leaves Networked mode and returns to a fresh Offline session.
func (e *Engine) Detach() { e.resetOffline() }

// syncReplayPlayerID fills in the replay header's playerId once the
// roster assigns this peer one. A no-op before the roster knows who we
// are (no local player yet) or once recording has started
// (replay.Writer.SetPlayerID then returns false).
func (e *Engine) syncReplayPlayerID() {
	if e.replayWriter == nil {
		return
	}
	if local := e.players.Local(); local != nil {
		e.replayWriter.SetPlayerID(local.PlayerID)
	}
}

// requestSnapshot is frameengine's RequestSnapshot hook (spec.md §4.6
// step 1): pick the remote peer furthest along and ask it for a
// snapshot. A no-op outside Networked mode or with no remote peer yet.
func (e *Engine) requestSnapshot() {
	if e.sync == nil {
		return
	}
	donor, ok := syncproto.PickDonor(e.players.Remote())
	if !ok {
		return
	}
	if err := e.sync.RequestSnapshot(donor); err != nil {
		log.Printf("[lockstep] request snapshot from %s: %v", donor, err)
	}
}

// handleSnapshotRequest is the donor side of spec.md §4.6 step 2: a
// peer asked us for a snapshot, so capture one via the host's
// onCreateSnapshot hook and send it back.
func (e *Engine) handleSnapshotRequest(from uuid.UUID) {
	var data []byte
	if e.onCreateSnapshot != nil {
		data = e.onCreateSnapshot()
	}
	if err := e.sync.SendSnapshot(from, e.fe.CurrentTime(), data); err != nil {
		log.Printf("[lockstep] send snapshot to %s: %v", from, err)
	}
}

// SetOnCreateSnapshot registers the host hook invoked when a remote peer
// requests a snapshot of this peer's state (spec.md §6's
// onCreateSnapshot).
func (e *Engine) SetOnCreateSnapshot(fn func() []byte) { e.onCreateSnapshot = fn }

// SetConsistencyHash registers the host hook invoked after onStep to
// fill in a frame's ConsistencyData (spec.md §4.3 step 5).
func (e *Engine) SetConsistencyHash(fn func(Frame) []byte) { e.consistencyHashFn = fn }

// AdjustTick runs one pacer decision (spec.md §4.2) and returns the
// seconds of simulation time the following Tick is allowed to advance.
func (e *Engine) AdjustTick(targetDelta, realDelta float64) float64 {
	currentTime := e.fe.CurrentTime()
	nowMs := e.now()

	remotes := e.players.Remote()
	pacerRemotes := make([]pacer.RemotePeer, len(remotes))
	targetTime := currentTime + e.cfg.FixedDeltaTimeSeconds
	if len(remotes) > 0 {
		targetTime = math.Inf(1)
	}
	for i, p := range remotes {
		pacerRemotes[i] = pacer.RemotePeer{
			ValidatedGameplayTimeSeconds: p.ValidatedGameplayTimeSeconds,
			GameplayTimeSeconds:          p.GameplayTimeSeconds,
			SentOnMs:                     p.SentOnMs,
		}
		extrapolated := p.GameplayTimeSeconds + float64(nowMs-p.SentOnMs)/1000.0
		if extrapolated < targetTime {
			targetTime = extrapolated
		}
	}
	e.lastTargetTime = targetTime

	return e.pc.Adjust(targetDelta, realDelta, e.fe.IsPaused(), currentTime, pacerRemotes, nowMs)
}

// Tick advances one simulation step by delta seconds and, in Networked
// mode, sends this tick's FrameDto to every remote peer (spec.md §4.3,
// §4.5). realDelta is accepted for API parity with spec.md §6's
// tick(delta, realDelta); the pacer already consumed it in AdjustTick.
func (e *Engine) Tick(delta, realDelta float64) {
	if e.mode == ReplayPlayback {
		e.tickReplay(delta)
		return
	}

	e.fe.UpdateCommandTime()
	e.fe.Tick(delta)

	if e.mode == Networked && e.sync != nil {
		e.sync.SendFrames(e.fe.CurrentTime(), e.fe.CommandTime(), delta, e.fe.LastConsistencyData())
	}
}

func (e *Engine) tickReplay(delta float64) {
	for _, rec := range e.replayReader.Drain(e.fe.CurrentTime()+delta, e.fe.IsPaused()) {
		switch b := rec.Body.(type) {
		case replay.LoadSnapshotBody:
			e.fe.InstallSnapshot(rec.Header.GameTime, b.Data)
		case replay.AddCommandBody:
			p := e.players.GetByPlayerID(b.PlayerID)
			if p == nil {
				continue
			}
			cmd := command.Command{
				CommandID:     uint32(b.CommandID),
				PlayerID:      b.PlayerID,
				PeerID:        p.PeerID,
				Content:       b.Data,
				ExecutionTime: b.GameTime,
			}
			if err := p.Commands.Insert(cmd); err != nil && err != command.ErrDuplicate {
				log.Printf("[lockstep] replay insert command: %v", err)
			}
		case replay.UpdatePlayerListBody:
			e.rosterSq.Buffer(b.PlayerUpdate)
		case replay.FrameBody, replay.ExecuteCommandBody:
			// Pure markers; frameengine.Tick re-derives the same
			// applied-command set from the AddCommand/UpdatePlayerList
			// records already folded in above.
		}
	}

	e.fe.UpdateCommandTime()
	e.fe.Tick(delta)
}

// EndFrame emits onEndFrame for the frame Tick just produced, once the
// host's own per-frame work has finished (spec.md §6).
func (e *Engine) EndFrame() { e.fe.EndFrame() }

// PushCommand implements spec.md §4.4's local-command admission,
// returning -1 on any precondition refusal.
func (e *Engine) PushCommand(content []byte) int32 {
	id, err := e.fe.PushCommand(content)
	if err != nil {
		return -1
	}
	return id
}

// CurrentTime is the currentTime() observer.
func (e *Engine) CurrentTime() float64 { return e.fe.CurrentTime() }

// CommandTime is the commandTime() observer.
func (e *Engine) CommandTime() float64 { return e.fe.CommandTime() }

// TargetTime is the targetTime() observer: the gameplay time AdjustTick
// most recently computed as the horizon it's racing to catch up with.
func (e *Engine) TargetTime() float64 { return e.lastTargetTime }

// Latency is the latency() observer: the admission delay UpdateCommandTime
// would currently compute from peer latency (spec.md §4.4's formula).
func (e *Engine) Latency() float64 {
	maxLatencyMs := 0.0
	for _, p := range e.players.Remote() {
		if peerMax := p.MaxLatencyMs(); peerMax > maxLatencyMs {
			maxLatencyMs = peerMax
		}
	}
	return clock.Clamp(maxLatencyMs/1000.0+e.cfg.DelayMarginSeconds, e.cfg.MinDelaySeconds, e.cfg.MaxDelaySeconds)
}

// Pause sets explicit pause state (spec.md §4.10).
func (e *Engine) Pause(paused bool) { e.fe.Pause(paused) }

// IsPaused reports explicit pause state.
func (e *Engine) IsPaused() bool { return e.fe.IsPaused() }

// Players returns a value-copied snapshot of every tracked participant,
// in ascending playerId order (spec.md §5).
func (e *Engine) Players() []PlayerState {
	tracked := e.players.ByPlayerID()
	out := make([]PlayerState, 0, len(tracked))
	for _, p := range tracked {
		var lastCommandID uint32
		if last := p.Commands.Last(); last != nil {
			lastCommandID = last.Cmd.CommandID
		}
		out = append(out, PlayerState{
			PeerID:            p.PeerID,
			PlayerID:          p.PlayerID,
			IsLocal:           p.IsLocal,
			LatencyMs:         p.AverageLatencyMs(),
			SynchronizedUntil: p.ValidatedGameplayTimeSeconds,
			LastCommandID:     lastCommandID,
		})
	}
	return out
}

// LoadReplay parses a replay byte stream and enters ReplayPlayback mode
// driven by it (spec.md §4.9).
func (e *Engine) LoadReplay(data []byte) error {
	r, err := replay.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}

	app.NextGeneration()

	e.mode = ReplayPlayback
	e.mesh = nil
	e.sync = nil
	e.replayWriter = nil
	e.replayReader = r

	e.players = player.New()
	local := player.NewState(uuid.New(), r.Header.PlayerID, e.cfg.LatencySamples, e.cfg.ConsistencyHistoryCapacity)
	local.IsLocal = true
	local.IsSynchronized = true
	e.players.Put(local)
	e.localPeerID = local.PeerID

	e.rosterSq = roster.NewSequencer(e.localPeerID, e.cfg.LatencySamples, e.cfg.ConsistencyHistoryCapacity)
	e.checker = consistency.NewChecker(e.cfg.FixedDeltaTimeSeconds)
	e.pc = pacer.New(e.cfg.FixedDeltaTimeSeconds, e.cfg.MinPauseDelayOnSlowAdjust)

	e.fe = e.newFrameEngine()
	return nil
}

// SetReplayWriter binds sink as the byte sink a Networked or Offline
// session's recording streams through, and begins recording
// immediately (spec.md §4.9: "typically begins on first unpause" is the
// host's convention for when to call this, not a constraint the engine
// enforces itself).
func (e *Engine) SetReplayWriter(sink io.Writer) error {
	if e.replayWriter == nil {
		return fmt.Errorf("lockstep: no replay writer in %s mode", e.mode)
	}
	return e.replayWriter.Start(sink)
}

// TrySetReplayInitialData sets the replay header's opaque
// initialization blob and build id. Returns false once recording has
// already started.
func (e *Engine) TrySetReplayInitialData(data []byte, buildID string) bool {
	if e.replayWriter == nil {
		return false
	}
	okData := e.replayWriter.SetInitializationData(data)
	okBuild := e.replayWriter.SetBuildID(buildID)
	return okData && okBuild
}

// TryGetReplayInitialData returns the replay header's opaque
// initialization blob and whether it's non-empty.
func (e *Engine) TryGetReplayInitialData() ([]byte, bool) {
	if e.replayWriter == nil {
		return nil, false
	}
	return e.replayWriter.InitializationData()
}
