package pipeline

import (
	"time"

	"github.com/hazyhaar/regcheck/journal"
	"github.com/hazyhaar/regcheck/verifier"
)

// Escalator decides when repeated blocking calls for a long pause. A blocked
// failure that repeats the previous one (same kind, same source) within
// window earns a cooldown. Failures are compared by category, never by
// message text.
type Escalator struct {
	window   time.Duration
	cooldown time.Duration
}

// NewEscalator returns an Escalator. Zero values default to a 5 minute
// window and a 30 minute cooldown.
func NewEscalator(window, cooldown time.Duration) *Escalator {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	return &Escalator{window: window, cooldown: cooldown}
}

// Cooldown returns the pause owed after cur, given the failure recorded
// before it (nil when there is none).
func (e *Escalator) Cooldown(prev *journal.Failure, cur journal.Failure) time.Duration {
	if prev == nil || cur.Kind != string(verifier.KindBlocked) {
		return 0
	}
	if prev.Kind != cur.Kind || prev.Source != cur.Source {
		return 0
	}
	gap := cur.At.Sub(prev.At)
	if gap < 0 || gap > e.window {
		return 0
	}
	return e.cooldown
}
