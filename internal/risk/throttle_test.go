package risk

import (
	"testing"
	"time"
)

func TestThrottleAdmitsFirstPass(t *testing.T) {
	th := newThrottle(2 * time.Second)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	if !th.admit(now) {
		t.Fatal("first pass must be admitted")
	}
}

func TestThrottleRejectsWithinInterval(t *testing.T) {
	th := newThrottle(2 * time.Second)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	th.admit(now)
	for _, offset := range []time.Duration{0, 500 * time.Millisecond, 1999 * time.Millisecond} {
		if th.admit(now.Add(offset)) {
			t.Fatalf("pass at +%s admitted within interval", offset)
		}
	}
	if !th.admit(now.Add(2 * time.Second)) {
		t.Fatal("pass at the interval boundary must be admitted")
	}
}

func TestThrottleRejectedPassLeavesStateUntouched(t *testing.T) {
	th := newThrottle(2 * time.Second)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	th.admit(now)
	th.admit(now.Add(1 * time.Second)) // rejected, must not reset the window

	if !th.admit(now.Add(2 * time.Second)) {
		t.Fatal("rejected pass moved the admission window")
	}
}
