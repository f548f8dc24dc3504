package clock

import (
	"testing"
	"time"
)

type manualTime struct {
	now time.Time
}

func (m *manualTime) Now() time.Time { return m.now }

func (m *manualTime) Advance(d time.Duration) { m.now = m.now.Add(d) }

func TestElapsedBeforeStartAutoStarts(t *testing.T) {
	src := &manualTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(WithSource(src.Now))

	if got := c.Elapsed(); got != 0 {
		t.Fatalf("expected 0 before start, got %v", got)
	}
	src.Advance(250 * time.Millisecond)
	if got := c.Elapsed(); got != 0.25 {
		t.Fatalf("expected auto-started clock to report 0.25, got %v", got)
	}
}

func TestStartResetsAnchor(t *testing.T) {
	src := &manualTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(WithSource(src.Now))
	c.Start()
	src.Advance(2 * time.Second)
	if got := c.Elapsed(); got != 2 {
		t.Fatalf("expected 2s, got %v", got)
	}

	c.Start()
	src.Advance(500 * time.Millisecond)
	if got := c.Elapsed(); got != 0.5 {
		t.Fatalf("expected restart to anchor at new instant, got %v", got)
	}
}

func TestElapsedNeverNegative(t *testing.T) {
	src := &manualTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(WithSource(src.Now))
	c.Start()
	src.Advance(-time.Second)
	if got := c.Elapsed(); got != 0 {
		t.Fatalf("expected clamp to zero, got %v", got)
	}
}

func TestRealClockIsMonotonic(t *testing.T) {
	c := New()
	c.Start()
	prev := c.Elapsed()
	for i := 0; i < 100; i++ {
		cur := c.Elapsed()
		if cur < prev {
			t.Fatalf("elapsed went backwards: %v < %v", cur, prev)
		}
		prev = cur
	}
}
