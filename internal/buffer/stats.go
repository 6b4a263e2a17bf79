package buffer

import "time"

// stats holds the monotonically increasing counters for one shard. Owned
// exclusively by the actor goroutine; snapshots cross the mailbox.
type stats struct {
	buffered  uint64
	delivered uint64
	late      uint64
	duplicate uint64
	bypassed  uint64
	dropped   uint64

	depthSum     uint64
	depthSamples uint64

	lastReorderRatio float64
}

func (s *stats) sampleDepth(depth int) {
	s.depthSum += uint64(depth)
	s.depthSamples++
}

// Snapshot is a point-in-time copy of one buffer's (or tier's) counters and
// tuning state, safe to retain after the buffer moves on.
type Snapshot struct {
	Tier Tier `json:"tier,omitempty"`

	Buffered  uint64 `json:"buffered"`
	Delivered uint64 `json:"delivered"`
	Late      uint64 `json:"late"`
	Duplicate uint64 `json:"duplicate"`
	Bypassed  uint64 `json:"bypassed"`
	Dropped   uint64 `json:"dropped"`

	// BufferDepth is the number of entries currently held.
	BufferDepth int `json:"buffer_depth"`

	// WindowMs is the current reordering window in milliseconds.
	WindowMs int64 `json:"window_ms"`

	DepthSum         uint64  `json:"depth_sum"`
	DepthSamples     uint64  `json:"depth_samples"`
	LastReorderRatio float64 `json:"last_reorder_ratio"`
}

// AvgDepth returns the running average buffer depth across flushes, or 0
// before the first sample.
func (s Snapshot) AvgDepth() float64 {
	if s.DepthSamples == 0 {
		return 0
	}
	return float64(s.DepthSum) / float64(s.DepthSamples)
}

func (s *stats) snapshot(tier Tier, depth int, window time.Duration) Snapshot {
	return Snapshot{
		Tier:             tier,
		Buffered:         s.buffered,
		Delivered:        s.delivered,
		Late:             s.late,
		Duplicate:        s.duplicate,
		Bypassed:         s.bypassed,
		Dropped:          s.dropped,
		BufferDepth:      depth,
		WindowMs:         window.Milliseconds(),
		DepthSum:         s.depthSum,
		DepthSamples:     s.depthSamples,
		LastReorderRatio: s.lastReorderRatio,
	}
}
