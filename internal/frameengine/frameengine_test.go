package frameengine

import (
	"testing"

	"github.com/google/uuid"

	"github.com/lockstepgg/lockstep-engine/internal/eventbus"
	"github.com/lockstepgg/lockstep-engine/internal/player"
	"github.com/lockstepgg/lockstep-engine/internal/roster"
)

func testConfig() Config {
	return Config{MinDelaySeconds: 0.1, MaxDelaySeconds: 0.6, DelayMarginSeconds: 0.0667}
}

func newOfflineEngine() (*Engine, *player.State) {
	bus := eventbus.New()
	tbl := player.New()
	local := player.NewState(uuid.New(), 0, 128, 8)
	local.IsLocal = true
	local.IsSynchronized = true
	tbl.Put(local)

	rosterSeq := roster.NewSequencer(local.PeerID, 128, 8)
	eng := NewEngine(bus, tbl, rosterSeq, testConfig(), func() int64 { return 0 })
	return eng, local
}

func TestSinglePlayerBootstrap(t *testing.T) {
	eng, _ := newOfflineEngine()

	if _, err := eng.PushCommand([]byte{0x41}); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized before any tick, got %v", err)
	}

	var frames []*Frame
	eng.Bus.Subscribe(eventbus.OnStep, func(v any) { frames = append(frames, v.(*Frame)) })

	eng.UpdateCommandTime()
	eng.Tick(1.0 / 30.0)

	if !eng.IsInitialized() {
		t.Fatalf("expected single-player bootstrap to initialize on the first tick")
	}
	if eng.CommandTime() < 0.1 {
		t.Fatalf("expected currentCommandTime >= 0.1 after warm-up, got %v", eng.CommandTime())
	}

	id, err := eng.PushCommand([]byte{0x41})
	if err != nil {
		t.Fatalf("PushCommand after warm-up: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first command id 1, got %d", id)
	}
	executionTime := eng.CommandTime()

	for eng.CurrentTime() <= executionTime {
		eng.UpdateCommandTime()
		eng.Tick(1.0 / 30.0)
	}

	var found bool
	for _, f := range frames {
		for _, c := range f.Commands {
			if c.CommandID == 1 && c.PlayerID == 0 && len(c.Content) == 1 && c.Content[0] == 0x41 {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected a frame to contain the pushed command; frames=%+v", frames)
	}
}

func TestPushCommandRefusesEmptyPayload(t *testing.T) {
	eng, _ := newOfflineEngine()
	eng.UpdateCommandTime()
	eng.Tick(1.0 / 30.0)

	if _, err := eng.PushCommand(nil); err != ErrEmptyPayload {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestPauseStateEmittedOnlyOnTransition(t *testing.T) {
	eng, _ := newOfflineEngine()

	var states []PauseState
	eng.Bus.Subscribe(eventbus.OnPauseStateChanged, func(v any) { states = append(states, v.(PauseState)) })

	eng.UpdateCommandTime()
	eng.Tick(1.0 / 30.0) // Running
	eng.UpdateCommandTime()
	eng.Tick(1.0 / 30.0) // still Running: no new emission
	eng.Pause(true)
	eng.UpdateCommandTime()
	eng.Tick(0) // Paused

	if len(states) != 2 {
		t.Fatalf("expected exactly 2 pause-state transitions, got %d: %v", len(states), states)
	}
	if states[0] != Running || states[1] != Paused {
		t.Fatalf("expected [Running Paused], got %v", states)
	}
}

func TestOnStartFiresOnce(t *testing.T) {
	eng, _ := newOfflineEngine()

	starts := 0
	eng.Bus.Subscribe(eventbus.OnStart, func(v any) { starts++ })

	for i := 0; i < 3; i++ {
		eng.UpdateCommandTime()
		eng.Tick(1.0 / 30.0)
	}

	if starts != 1 {
		t.Fatalf("expected onStart exactly once, got %d", starts)
	}
}
