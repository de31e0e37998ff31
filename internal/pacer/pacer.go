// Package pacer implements the frame pacing controller (spec.md §4.2):
// it decides, on each host-loop invocation, how much simulation time is
// safe to advance without racing ahead of any remote peer's validated
// horizon.
//
// Grounded on internal/scheduler/scheduler.go's Step (accumulate elapsed
// time against a fixed frame duration, advance-or-wait), generalized
// from "sleep until the next frame boundary" to "report zero and let the
// host decide" since the pacer never owns the host's loop timing here —
// per spec.md §5 it is called from, not calling into, the host loop.
package pacer

import "math"

// RemotePeer is the minimal view of a remote participant the pacer
// needs (spec.md §4.2 step 4 and the targetTime formula).
type RemotePeer struct {
	ValidatedGameplayTimeSeconds float64
	GameplayTimeSeconds          float64
	SentOnMs                     int64
}

// Pacer implements spec.md §4.2's Adjust algorithm.
type Pacer struct {
	FixedDeltaTimeSeconds     float64
	MinPauseDelayOnSlowAdjust float64

	timeSinceLastGameplayProgress float64

	// lastPausedOn is the gameplay time as of the most recent call that
	// advanced by zero, for any reason: not-yet-due, the
	// synchronizedUntil horizon block, or the slow-adjust branch below.
	// Every such call refreshes it, so MinPauseDelayOnSlowAdjust only
	// lets a fresh slow-adjust stall happen once a full interval has
	// passed without ANY stall, not just since the last slow-adjust one.
	lastPausedOn float64
}

// New returns a Pacer configured with the given tunables.
func New(fixedDelta, minPauseDelay float64) *Pacer {
	return &Pacer{FixedDeltaTimeSeconds: fixedDelta, MinPauseDelayOnSlowAdjust: minPauseDelay}
}

// Adjust runs one pacer decision (spec.md §4.2). currentTime is the
// frame engine's current gameplay time; nowMs is the host wall clock in
// milliseconds, used to extrapolate each remote peer's gameplay time
// since its last reported frame. Returns the seconds of simulation time
// this tick is allowed to advance (0 if not yet, or blocked).
//
// The REDESIGN FLAGS resolution for spec.md §9's offline no-op
// assignment applies here unconditionally: with zero remote peers,
// synchronizedUntil and targetTime degenerate to +Inf and
// currentTime+Δ respectively, which is exactly what steps 4-6 compute
// below when remotes is empty — there is no special-cased "offline
// mode" branch, networked pacing with zero peers IS offline pacing.
func (p *Pacer) Adjust(targetDelta, realDelta float64, paused bool, currentTime float64, remotes []RemotePeer, nowMs int64) float64 {
	p.timeSinceLastGameplayProgress += targetDelta

	delta := p.FixedDeltaTimeSeconds
	if paused {
		delta = 0
	}

	if p.timeSinceLastGameplayProgress < delta {
		p.lastPausedOn = currentTime
		return 0
	}

	next := currentTime + delta

	synchronizedUntil := math.Inf(1)
	for _, r := range remotes {
		if r.ValidatedGameplayTimeSeconds < synchronizedUntil {
			synchronizedUntil = r.ValidatedGameplayTimeSeconds
		}
	}
	if next > synchronizedUntil {
		p.lastPausedOn = currentTime
		return 0
	}

	targetTime := currentTime + p.FixedDeltaTimeSeconds
	if len(remotes) > 0 {
		targetTime = math.Inf(1)
		for _, r := range remotes {
			extrapolated := r.GameplayTimeSeconds + float64(nowMs-r.SentOnMs)/1000.0
			if extrapolated < targetTime {
				targetTime = extrapolated
			}
		}
	}

	if next > targetTime+p.FixedDeltaTimeSeconds && (currentTime-p.lastPausedOn) > p.MinPauseDelayOnSlowAdjust {
		p.lastPausedOn = currentTime
		return 0
	}

	if delta == 0 {
		p.lastPausedOn = currentTime
	}
	p.timeSinceLastGameplayProgress -= delta
	return delta
}
