package risk

import (
	"sync"
	"time"
)

// throttle admits at most one evaluation pass per interval. It is a pure
// rate limiter: a rejected tick is dropped, not queued. State is held on the
// instance so tests can drive it with a fake clock.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval}
}

// admit reports whether a pass starting at now may run, and records it as
// the last admitted pass when it may.
func (t *throttle) admit(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
