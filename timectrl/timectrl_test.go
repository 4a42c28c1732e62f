package timectrl

import (
	"testing"
	"time"
)

func TestManualClockAdvance(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	c.Advance(42 * time.Second)
	if got, want := c.Now(), start.Add(42*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() after Set = %v, want %v", got, start)
	}
}

func TestBudgetRemaining(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	b := NewBudget(c, time.Minute)

	c.Advance(20 * time.Second)
	if got := b.Elapsed(); got != 20*time.Second {
		t.Fatalf("Elapsed() = %v, want 20s", got)
	}
	if got := b.Remaining(); got != 40*time.Second {
		t.Fatalf("Remaining() = %v, want 40s", got)
	}
	deadline, ok := b.Deadline()
	if !ok || !deadline.Equal(start.Add(time.Minute)) {
		t.Fatalf("Deadline() = %v, %v", deadline, ok)
	}

	c.Advance(time.Minute)
	if got := b.Remaining(); got >= 0 {
		t.Fatalf("Remaining() after deadline = %v, want negative", got)
	}
}

func TestBudgetWithoutDeadline(t *testing.T) {
	b := NewBudget(NewManualClock(time.Unix(0, 0)), 0)
	if _, ok := b.Deadline(); ok {
		t.Fatalf("expected no deadline")
	}
	if b.Remaining() < 24*time.Hour {
		t.Fatalf("Remaining() without deadline should be unbounded")
	}
}
