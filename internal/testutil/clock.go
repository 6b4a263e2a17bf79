// Package testutil provides deterministic test doubles for the ordering
// layer: a manually advanced wall clock and a recording subscriber.
package testutil

import (
	"sync"
	"time"
)

// ManualClock is a wall clock that only moves when told to. Inject its Now
// method into hlc.Clock or a buffer to make timing classification and
// window cutoffs deterministic.
//
// Thread-safe: buffers read the clock from their actor goroutine while the
// test advances it.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewManualClock creates a clock pinned to the given epoch milliseconds.
func NewManualClock(ms int64) *ManualClock {
	return &ManualClock{t: time.UnixMilli(ms)}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Set pins the clock to the given epoch milliseconds.
func (c *ManualClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = time.UnixMilli(ms)
}
