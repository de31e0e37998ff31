// Command lockstep-demo runs two in-memory engines over a shared
// in-process mesh, pushes a scripted stream of local commands on each
// side, and checks that both engines' onStep sequences end up
// identical, a runnable demonstration of the Determinism property
// (spec.md §8).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lockstepgg/lockstep-engine/internal/eventbus"
	"github.com/lockstepgg/lockstep-engine/internal/scheduler"
	"github.com/lockstepgg/lockstep-engine/internal/syncproto"
	"github.com/lockstepgg/lockstep-engine/internal/transport"
	"github.com/lockstepgg/lockstep-engine/lockstep"
)

// fakeClock drives the scheduler instantly: Now() advances by one frame
// interval every call, Sleep is a no-op. Grounded on
// internal/scheduler's own test fakeClock, reused here so the demo
// finishes immediately instead of actually pacing at 30fps.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}
func (c *fakeClock) Sleep(time.Duration) {}

// server is a bare mesh peer standing in for the session-control channel
// spec.md deliberately leaves out of scope: it only ever sends roster
// messages, never frames or commands.
type server struct {
	mesh transport.Mesh
}

func (s server) sendSnapshot(to uuid.UUID, snap syncproto.PlayersSnapshotInstallCommand) error {
	payload, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	return s.mesh.SendReliable(to, syncproto.RoutePlayersSnapshot, payload)
}

func (s server) sendRosterAdd(to uuid.UUID, update syncproto.PlayersUpdateCommand) error {
	payload, err := msgpack.Marshal(update)
	if err != nil {
		return err
	}
	return s.mesh.SendReliable(to, syncproto.RoutePlayersUpdate, payload)
}

func recordOnStep(e *lockstep.Engine) *[]string {
	log := make([]string, 0, 64)
	e.Bus.Subscribe(eventbus.OnStep, func(v any) {
		frame := v.(lockstep.Frame)
		for _, c := range frame.Commands {
			log = append(log, fmt.Sprintf("%d:%d@%.4f", c.PlayerID, c.CommandID, frame.CurrentTime))
		}
	})
	return &log
}

func run() error {
	cfg := lockstep.DefaultConfig()
	hub := transport.NewLoopbackHub()

	aPeer, bPeer, serverPeer := uuid.New(), uuid.New(), uuid.New()
	srv := server{mesh: hub.Join(serverPeer)}

	a := lockstep.New(cfg, func() int64 { return 0 })
	b := lockstep.New(cfg, func() int64 { return 0 })
	a.Attach(hub.Join(aPeer))
	b.Attach(hub.Join(bPeer))

	// A starts alone: its roster snapshot names only itself, so its
	// first tick takes the zero-remotes bootstrap path (spec.md §4.6
	// step 4) instead of waiting on a snapshot handshake.
	if err := srv.sendSnapshot(aPeer, syncproto.PlayersSnapshotInstallCommand{
		UpdateID: 0,
		Players:  map[int32]uuid.UUID{0: aPeer},
	}); err != nil {
		return err
	}
	// B joins already knowing about A, so its first tick finds a
	// remote and waits for A to be seen as synchronized before
	// requesting a snapshot from it.
	if err := srv.sendSnapshot(bPeer, syncproto.PlayersSnapshotInstallCommand{
		UpdateID: 0,
		Players:  map[int32]uuid.UUID{0: aPeer, 1: bPeer},
	}); err != nil {
		return err
	}

	aLog := recordOnStep(a)
	bLog := recordOnStep(b)

	sched := scheduler.New(1.0 / 30.0).WithClock(&fakeClock{step: time.Second / 30})

	tickOne := func(e *lockstep.Engine) {
		delta := e.AdjustTick(cfg.FixedDeltaTimeSeconds, cfg.FixedDeltaTimeSeconds)
		e.Tick(delta, cfg.FixedDeltaTimeSeconds)
		e.EndFrame()
	}

	// Warm A up alone for a few ticks so it's fully initialized before
	// B is introduced into its roster.
	for i := 0; i < 3; i++ {
		sched.Step(func(float64) { tickOne(a) })
	}

	// Now tell A that B has joined. Once this lands, A's SendFrames
	// starts addressing B directly, and B's handleFrame marks A
	// synchronized from B's own side, which is what lets B's
	// maybeStartLateJoin request a snapshot from A.
	if err := srv.sendRosterAdd(aPeer, syncproto.PlayersUpdateCommand{
		CommandType:     syncproto.RosterAdd,
		UpdateID:        1,
		PlayerID:        1,
		PlayerSessionID: bPeer,
	}); err != nil {
		return err
	}

	const frames = 90
	for i := 0; i < frames; i++ {
		sched.Step(func(float64) {
			if i == 30 {
				a.PushCommand([]byte("a-move"))
			}
			if i == 45 {
				b.PushCommand([]byte("b-jump"))
			}
			tickOne(a)
			tickOne(b)
		})
	}

	fmt.Printf("A executed %d commands, B executed %d commands\n", len(*aLog), len(*bLog))
	if len(*aLog) != len(*bLog) {
		return fmt.Errorf("determinism check failed: event counts differ (%d vs %d)", len(*aLog), len(*bLog))
	}
	for i := range *aLog {
		if (*aLog)[i] != (*bLog)[i] {
			return fmt.Errorf("determinism check failed at event %d: %q vs %q", i, (*aLog)[i], (*bLog)[i])
		}
	}
	fmt.Println("determinism check passed: both peers executed an identical command sequence")
	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lockstep-demo: %v\n", err)
		os.Exit(1)
	}
}
