package ledger

import "sync/atomic"

// Clock is a monotonic logical clock. Every applied outcome is stamped
// with a strictly increasing seq so the persisted ledger log has a total
// order independent of wall time and of report arrival interleaving.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known position, e.g. after
// reloading persisted outcomes.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments and returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the clock position without advancing it.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
