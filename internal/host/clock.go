package host

import "sync/atomic"

// Clock hands out monotonically increasing sequence numbers. The first
// value returned by Next on a fresh clock is 1.
//
// Safe for concurrent use, although the host only advances it from Run.
type Clock struct {
	seq atomic.Int64
}

func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose next value is start+1. Used to resume
// after the last seq found in a call log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// AdvanceTo moves the clock forward to at least n. It never moves back.
func (c *Clock) AdvanceTo(n int64) {
	for {
		cur := c.seq.Load()
		if cur >= n || c.seq.CompareAndSwap(cur, n) {
			return
		}
	}
}
