package observe

import (
	"testing"
	"time"
)

func TestTiming_CompleteOnce(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	current := base
	timing := newTimingWithClock(func() time.Time { return current })

	if !timing.StartedAt.Equal(base) {
		t.Errorf("Expected start %v, got %v", base, timing.StartedAt)
	}

	current = base.Add(3 * time.Second)
	timing.Complete()
	current = base.Add(10 * time.Second)
	timing.Complete()

	if got := timing.CompletedAt.Sub(timing.StartedAt); got != 3*time.Second {
		t.Errorf("Expected frozen duration 3s, got %v", got)
	}
}
