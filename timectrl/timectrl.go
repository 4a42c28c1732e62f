package timectrl

import (
	"sync"
	"time"
)

// Clock is the time source of an optimization run. Components depend on it
// rather than on time.Now so budget decisions can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock constructs a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Budget tracks the wall-clock allowance of one run.
type Budget struct {
	clock    Clock
	start    time.Time
	deadline time.Time // zero means unlimited
}

// NewBudget starts a budget of limit on clock. A non-positive limit means no
// deadline.
func NewBudget(clock Clock, limit time.Duration) *Budget {
	if clock == nil {
		clock = SystemClock{}
	}
	b := &Budget{clock: clock, start: clock.Now()}
	if limit > 0 {
		b.deadline = b.start.Add(limit)
	}
	return b
}

// Start returns when the budget started.
func (b *Budget) Start() time.Time { return b.start }

// Deadline returns the deadline and whether one is set.
func (b *Budget) Deadline() (time.Time, bool) { return b.deadline, !b.deadline.IsZero() }

// Now reads the budget's clock.
func (b *Budget) Now() time.Time { return b.clock.Now() }

// Elapsed returns the time spent since the budget started.
func (b *Budget) Elapsed() time.Duration { return b.clock.Now().Sub(b.start) }

// Remaining returns the time left before the deadline, or a negative value
// once exceeded. Without a deadline it returns the largest duration.
func (b *Budget) Remaining() time.Duration {
	if b.deadline.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return b.deadline.Sub(b.clock.Now())
}
