package engine

import "sync/atomic"

// Clock is the monotonic logical clock of a session.
//
// Trace events and continuations are stamped with strictly increasing seq
// numbers from this clock, never with wall-clock time, so a replayed
// session produces identical ordering.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// In practice only the goroutine driving the session calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
