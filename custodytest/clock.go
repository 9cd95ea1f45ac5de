package custodytest

import (
	"context"
	"sync"
	"time"

	superpool "github.com/rafamiziara/superpool-sub007"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to given time. Time is truncated to seconds
// because records store unix seconds.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC().Truncate(time.Second)}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Context returns a context that declares the current clock time.
func (c *Clock) Context(ctx context.Context) context.Context {
	return superpool.WithNow(ctx, c.Now())
}
