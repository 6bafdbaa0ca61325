package observe

import "time"

// Timing records start/end timestamps of one external invocation.
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time

	now func() time.Time
}

// NewTiming creates timing with current start time
func NewTiming() *Timing {
	return newTimingWithClock(time.Now)
}

func newTimingWithClock(now func() time.Time) *Timing {
	return &Timing{
		StartedAt: now(),
		now:       now,
	}
}

// Complete records completion time. Only the first call counts.
func (t *Timing) Complete() {
	if !t.CompletedAt.IsZero() {
		return
	}
	t.CompletedAt = t.now()
}
