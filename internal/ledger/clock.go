package ledger

import "sync/atomic"

// Clock is the ledger's monotonic logical clock.
//
// Every edge is stamped with a strictly increasing seq from this clock.
// Order never comes from wall-clock time, so skew between producers cannot
// reorder the log and a reload resumes exactly where the log ends.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The ledger only advances it inside the append critical section.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
// Used on reload to resume after the last persisted edge.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// advanceTo moves the clock forward to at least seq. Never moves backward.
func (c *Clock) advanceTo(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
