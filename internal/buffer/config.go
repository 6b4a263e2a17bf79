package buffer

import (
	"errors"
	"fmt"
	"time"
)

// Config tunes one ordering buffer (or one tier of a partitioned buffer).
// The zero value is not usable; start from DefaultConfig or let
// withDefaults fill the gaps.
type Config struct {
	// Window is the reordering delay: how long the buffer waits for
	// earlier-stamped events before considering an entry deliverable.
	Window time.Duration

	// MinWindow and MaxWindow bound the adaptive control loop.
	MinWindow time.Duration
	MaxWindow time.Duration

	// Adaptive enables window re-tuning after each timed flush.
	Adaptive bool

	// MaxBufferSize forces a full synchronous flush when reached.
	MaxBufferSize int

	// BatchSize caps how many events one delivery message carries.
	BatchSize int

	// BypassIntensityThreshold is the priority-signal intensity at or above
	// which an event skips the buffer entirely.
	BypassIntensityThreshold float64

	// ClockDriftTolerance is how far ahead of wall time an event's physical
	// component may be before it is classified as a future anomaly.
	ClockDriftTolerance time.Duration

	// Adapt holds the control-loop thresholds. The defaults are heuristic
	// constants inherited from observed behavior, not derived values;
	// tiers override them.
	Adapt AdaptPolicy
}

// DefaultConfig returns the baseline configuration for a generic buffer.
func DefaultConfig() Config {
	return Config{
		Window:                   50 * time.Millisecond,
		MinWindow:                10 * time.Millisecond,
		MaxWindow:                time.Second,
		Adaptive:                 true,
		MaxBufferSize:            1000,
		BatchSize:                50,
		BypassIntensityThreshold: 0.95,
		ClockDriftTolerance:      time.Second,
		Adapt:                    DefaultAdaptPolicy(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.MinWindow <= 0 {
		c.MinWindow = def.MinWindow
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = def.MaxWindow
	}
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = def.MaxBufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BypassIntensityThreshold <= 0 {
		c.BypassIntensityThreshold = def.BypassIntensityThreshold
	}
	if c.ClockDriftTolerance <= 0 {
		c.ClockDriftTolerance = def.ClockDriftTolerance
	}
	c.Adapt = c.Adapt.withDefaults()
	return c
}

// Validate rejects configurations the buffer cannot honor.
func (c Config) Validate() error {
	if c.MinWindow > c.MaxWindow {
		return fmt.Errorf("buffer: min window %s exceeds max window %s", c.MinWindow, c.MaxWindow)
	}
	if c.Window < c.MinWindow || c.Window > c.MaxWindow {
		return fmt.Errorf("buffer: window %s outside [%s, %s]", c.Window, c.MinWindow, c.MaxWindow)
	}
	if c.BypassIntensityThreshold > 1 {
		return errors.New("buffer: bypass intensity threshold must be in (0, 1]")
	}
	return nil
}

// AdaptPolicy holds the adaptive-window thresholds. All fields are
// configurable; the defaults match the observed heuristics.
type AdaptPolicy struct {
	// WidenThreshold: reorder ratio above which the window widens.
	WidenThreshold float64

	// CalmThreshold: reorder ratio below which a high-rate buffer is
	// considered orderly enough to narrow.
	CalmThreshold float64

	// LowRate and HighRate are events-per-second boundaries.
	LowRate  float64
	HighRate float64

	// WidenFactor grows the window; NarrowFactor shrinks it at low rate;
	// FastNarrowFactor shrinks it under high, orderly traffic.
	WidenFactor      float64
	NarrowFactor     float64
	FastNarrowFactor float64
}

// DefaultAdaptPolicy returns the observed control-loop constants.
func DefaultAdaptPolicy() AdaptPolicy {
	return AdaptPolicy{
		WidenThreshold:   0.1,
		CalmThreshold:    0.01,
		LowRate:          10,
		HighRate:         100,
		WidenFactor:      1.5,
		NarrowFactor:     0.8,
		FastNarrowFactor: 0.9,
	}
}

func (p AdaptPolicy) withDefaults() AdaptPolicy {
	def := DefaultAdaptPolicy()
	if p.WidenThreshold <= 0 {
		p.WidenThreshold = def.WidenThreshold
	}
	if p.CalmThreshold <= 0 {
		p.CalmThreshold = def.CalmThreshold
	}
	if p.LowRate <= 0 {
		p.LowRate = def.LowRate
	}
	if p.HighRate <= 0 {
		p.HighRate = def.HighRate
	}
	if p.WidenFactor <= 1 {
		p.WidenFactor = def.WidenFactor
	}
	if p.NarrowFactor <= 0 || p.NarrowFactor >= 1 {
		p.NarrowFactor = def.NarrowFactor
	}
	if p.FastNarrowFactor <= 0 || p.FastNarrowFactor >= 1 {
		p.FastNarrowFactor = def.FastNarrowFactor
	}
	return p
}

// Next computes the window after one adaptation step, rounded to the
// nearest millisecond and clamped to [min, max].
func (p AdaptPolicy) Next(window time.Duration, reorderRatio, eventRate float64, min, max time.Duration) time.Duration {
	var next time.Duration
	switch {
	case reorderRatio > p.WidenThreshold:
		next = time.Duration(float64(window) * p.WidenFactor)
		if next > max {
			next = max
		}
	case eventRate < p.LowRate:
		next = time.Duration(float64(window) * p.NarrowFactor)
		if next < min {
			next = min
		}
	case eventRate > p.HighRate && reorderRatio < p.CalmThreshold:
		next = time.Duration(float64(window) * p.FastNarrowFactor)
		if next < min {
			next = min
		}
	default:
		return window
	}
	return next.Round(time.Millisecond)
}
