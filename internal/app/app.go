// Package app holds small process-wide atomics shared across the engine.
package app

import "sync/atomic"

var generation int64

// NextGeneration bumps and returns the engine generation counter. The
// engine calls this on every Offline/Networked/ReplayPlayback transition
// so that callbacks scheduled by a discarded engine (e.g. a pending
// snapshot reply arriving after reset) can recognize they're stale.
func NextGeneration() int64 {
	return atomic.AddInt64(&generation, 1)
}

// Generation returns the current generation without advancing it.
func Generation() int64 {
	return atomic.LoadInt64(&generation)
}

// ResetGeneration restores the counter to zero. Test-only.
func ResetGeneration() {
	atomic.StoreInt64(&generation, 0)
}
