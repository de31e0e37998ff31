// Package consistency implements the cross-peer hash-check sweep of
// spec.md §4.8: periodically comparing one opaque hash per peer at the
// same gameplay time to detect simulation divergence.
//
// Grounded on internal/network/network.go's UpdateFrame (snapshot a
// shared map under lock, then scan it without holding the lock),
// re-targeted from per-tier sync timers onto per-peer consistency
// history rings.
package consistency

import "github.com/lockstepgg/lockstep-engine/internal/player"

// Result is what a completed sweep hands the host: the gameplay time
// the hashes were captured at, and one hash per playerId.
type Result struct {
	GameplayTime float64
	Hashes       map[int32][]byte
}

// Checker tracks the next gameplay time a consistency sweep targets.
type Checker struct {
	Target float64
	Step   float64
}

// NewChecker returns a Checker whose first sweep targets time 0 and
// advances by step seconds on every successful sweep.
func NewChecker(step float64) *Checker {
	return &Checker{Step: step}
}

// Sweep pops entries strictly older than c.Target from every tracked
// player's consistency history, then collects an entry exactly at
// c.Target from whichever players have one yet (a player that simply
// hasn't caught up to c.Target is skipped, not blocking); once collected
// it advances c.Target by c.Step and, if anyone reported, returns a
// Result. It keeps advancing and retrying like this on its own until
// either a Result fires or a player's history is completely empty (that
// player hasn't sent anything at all yet), at which point it returns
// (nil, false) and leaves c.Target where the next sync's data will
// reach it.
func (c *Checker) Sweep(players []*player.State) (*Result, bool) {
	for {
		hashes := make(map[int32][]byte, len(players))
		blocked := false

		for _, p := range players {
			for {
				front, ok := p.ConsistencyHistory.Front()
				if !ok || front.GameplayTime >= c.Target {
					break
				}
				p.ConsistencyHistory.PopFront()
			}

			front, ok := p.ConsistencyHistory.Front()
			if !ok {
				blocked = true
				break
			}
			if front.GameplayTime == c.Target {
				hashes[p.PlayerID] = front.Hash
			}
		}

		if blocked {
			return nil, false
		}
		if len(hashes) > 0 {
			result := &Result{GameplayTime: c.Target, Hashes: hashes}
			c.Target += c.Step
			return result, true
		}
		// Nobody had data exactly at c.Target, but nobody was empty
		// either (e.g. c.Target is still behind the first frame any
		// player has ever reported), so skip this target and retry.
		c.Target += c.Step
	}
}
