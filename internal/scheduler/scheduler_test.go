package scheduler

import (
	"testing"
	"time"
)

type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (f *fakeClock) Now() time.Time        { return f.now }
func (f *fakeClock) Sleep(d time.Duration) { f.slept += d }

func TestStepSleepsToFrame(t *testing.T) {
	fc := &fakeClock{now: time.Unix(0, 0)}
	s := New(1.0 / 60.0).WithClock(fc)
	var gotDelta float64
	s.Step(func(deltaSeconds float64) {
		gotDelta = deltaSeconds
		// simulate work of 5ms
		fc.now = fc.now.Add(5 * time.Millisecond)
	})
	if gotDelta != 1.0/60.0 {
		t.Fatalf("expected fixed delta 1/60, got %v", gotDelta)
	}
	frame := time.Second / 60
	if fc.slept != frame-5*time.Millisecond {
		t.Fatalf("expected sleep %v, got %v", frame-5*time.Millisecond, fc.slept)
	}
}

func TestStepDefaultsWhenDeltaUnset(t *testing.T) {
	fc := &fakeClock{now: time.Unix(0, 0)}
	s := New(0).WithClock(fc)
	var gotDelta float64
	s.Step(func(deltaSeconds float64) { gotDelta = deltaSeconds })
	if gotDelta != 1.0/60.0 {
		t.Fatalf("expected default delta 1/60, got %v", gotDelta)
	}
}
