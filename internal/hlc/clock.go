package hlc

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultMaxOffset is the largest tolerated gap between a remote timestamp's
// physical component and local wall time before Update rejects it.
const DefaultMaxOffset = 60 * time.Second

// DriftError reports a remote timestamp rejected by Update because its
// physical component is too far from local wall time. The local clock state
// is unchanged when this error is returned.
type DriftError struct {
	Remote    Timestamp
	WallMs    uint64
	MaxOffset time.Duration
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("hlc: remote timestamp %s drifts more than %s from local wall time %dms",
		e.Remote, e.MaxOffset, e.WallMs)
}

// IsDriftError reports whether err is (or wraps) a DriftError.
func IsDriftError(err error) bool {
	var de *DriftError
	return errors.As(err, &de)
}

// Clock is the node's clock authority: the single source of HLC timestamps.
//
// All mutation is serialized behind a mutex, so two concurrent Now calls can
// never compute the same logical value. Create one Clock per process and
// share it; see supervisor for how buffers receive it.
type Clock struct {
	mu           sync.Mutex
	nodeID       string
	lastPhysical uint64
	logical      uint32

	maxOffset time.Duration
	now       func() time.Time
}

// Option configures a Clock at construction.
type Option func(*Clock)

// WithMaxOffset overrides the drift tolerance applied by Update.
func WithMaxOffset(d time.Duration) Option {
	return func(c *Clock) { c.maxOffset = d }
}

// WithNowFunc substitutes the wall-clock source. Tests use this with a
// manual clock; production code never should.
func WithNowFunc(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// New creates a Clock stamping timestamps for nodeID.
func New(nodeID string, opts ...Option) *Clock {
	c := &Clock{
		nodeID:    nodeID,
		maxOffset: DefaultMaxOffset,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NodeID returns the node id this clock stamps with.
func (c *Clock) NodeID() string { return c.nodeID }

func (c *Clock) wallMs() uint64 {
	ms := c.now().UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

// Now returns the next local timestamp. If wall time has advanced past the
// last emission the logical counter resets; otherwise the physical component
// holds and the counter increments. Now never fails.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.wallMs()
	if wall > c.lastPhysical {
		c.lastPhysical = wall
		c.logical = 0
	} else {
		c.logical++
	}
	return Timestamp{Physical: c.lastPhysical, Logical: c.logical, NodeID: c.nodeID}
}

// Update merges a remote timestamp into the local clock and returns the new
// local timestamp, which orders after both the remote stamp and everything
// emitted locally so far.
//
// If the remote physical component is further than the configured offset
// from local wall time, Update returns a DriftError and mutates nothing;
// the caller decides whether to discard the remote stamp or escalate.
func (c *Clock) Update(remote Timestamp) (Timestamp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.wallMs()
	var drift uint64
	if remote.Physical > wall {
		drift = remote.Physical - wall
	} else {
		drift = wall - remote.Physical
	}
	if drift > uint64(c.maxOffset.Milliseconds()) {
		return Timestamp{}, &DriftError{Remote: remote, WallMs: wall, MaxOffset: c.maxOffset}
	}

	switch {
	case wall > remote.Physical && wall > c.lastPhysical:
		c.lastPhysical = wall
		c.logical = 0
	case remote.Physical > wall && remote.Physical > c.lastPhysical:
		c.lastPhysical = remote.Physical
		c.logical = remote.Logical + 1
	default:
		// The maximum is shared; advance the logical counter past both sides.
		p := c.lastPhysical
		if wall > p {
			p = wall
		}
		if remote.Physical > p {
			p = remote.Physical
		}
		if p == c.lastPhysical {
			l := c.logical
			if remote.Logical > l {
				l = remote.Logical
			}
			c.logical = l + 1
		} else {
			c.logical = 0
		}
		c.lastPhysical = p
	}

	return Timestamp{Physical: c.lastPhysical, Logical: c.logical, NodeID: c.nodeID}, nil
}
