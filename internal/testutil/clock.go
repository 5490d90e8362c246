package testutil

import (
	"sync"
	"time"
)

// Clock is a controllable time source. Pass Clock.Now wherever a component
// takes a `func() time.Time`.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock returns a Clock at now, or at 2026-01-01 00:00:00 UTC when no time
// is given.
func NewClock(now ...time.Time) *Clock {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if len(now) > 0 {
		t = now[0]
	}
	return &Clock{now: t}
}

// Now returns the current time, then advances by the auto step if one is set.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// AutoAdvance makes every Now call move the clock forward by step, so each
// timed step in a run gets a distinct, predictable duration.
func (c *Clock) AutoAdvance(step time.Duration) *Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	return c
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
