package trace

import "sync/atomic"

// Clock hands out strictly increasing sequence numbers for trace events.
// Never use wall-clock time for ordering.
//
// Safe for concurrent use, though a run records from one goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
