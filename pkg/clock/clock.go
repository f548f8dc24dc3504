// Package clock provides the relative time source used to stamp recorded events.
package clock

import (
	"sync"
	"time"
)

// Clock reports seconds elapsed since the last Start. It relies on the
// monotonic reading carried by time.Time, so wall-clock adjustments do not
// distort the deltas between events.
//
// Calling Elapsed before Start anchors the clock at that instant and returns 0.
type Clock struct {
	mu     sync.Mutex
	now    func() time.Time
	anchor time.Time
	set    bool
}

// Option customises a Clock.
type Option func(*Clock)

// WithSource overrides the time source. Tests use it to drive time manually.
func WithSource(now func() time.Time) Option {
	return func(c *Clock) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs an unstarted clock.
func New(opts ...Option) *Clock {
	c := &Clock{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start resets the anchor to the current instant.
func (c *Clock) Start() {
	c.mu.Lock()
	c.anchor = c.now()
	c.set = true
	c.mu.Unlock()
}

// Elapsed returns the seconds since the last Start.
func (c *Clock) Elapsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.set {
		c.anchor = now
		c.set = true
		return 0
	}
	d := now.Sub(c.anchor)
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
