package buffer

import (
	"log/slog"
	"time"

	"github.com/causewayio/causeway/internal/event"
	"github.com/causewayio/causeway/internal/hlc"
)

// shard is the ordering state machine for one traffic stream: the sorted
// buffer, its stats, the current window, and the pending-timer marker. A
// generic Buffer owns one shard; a Partitioned buffer owns one per tier.
//
// All shard methods run on the owning actor's goroutine. The owner supplies
// delivery, timer scheduling, and journaling through the host hooks.
type shard struct {
	tier Tier
	cfg  Config

	host shardHost

	window    time.Duration
	buf       *sortedBuffer
	stats     stats
	createdAt time.Time

	lastDelivered *hlc.Timestamp
	timerPending  bool
	timer         *time.Timer
}

// shardHost is what a shard needs from its owning actor.
type shardHost interface {
	now() time.Time
	deliver(d Delivery) error
	schedule(tier Tier, d time.Duration) *time.Timer
	record(outcome Outcome, ev *event.Event)
	log() *slog.Logger
}

func newShard(tier Tier, cfg Config, host shardHost) *shard {
	cfg = cfg.withDefaults()
	return &shard{
		tier:      tier,
		cfg:       cfg,
		host:      host,
		window:    cfg.Window,
		buf:       newSortedBuffer(),
		createdAt: host.now(),
	}
}

// submit runs the arrival state machine: bypass, duplicate, timing
// classification, overflow guard, timer scheduling.
func (s *shard) submit(ev *event.Event) {
	md := ev.Metadata
	if md.Bypass || (md.PrioritySignal && md.Intensity >= s.cfg.BypassIntensityThreshold) {
		// Bypass skips the buffer and all duplicate/late accounting, and
		// deliberately does not advance lastDelivered.
		s.stats.bypassed++
		s.host.record(OutcomeBypassed, ev)
		s.deliverNow(ev)
		return
	}

	if s.lastDelivered != nil && ev.Timestamp.Equal(*s.lastDelivered) {
		s.stats.duplicate++
		s.host.record(OutcomeDuplicate, ev)
		return
	}

	nowMs := uint64(s.host.now().UnixMilli())
	driftTol := uint64(s.cfg.ClockDriftTolerance.Milliseconds())
	windowMs := uint64(s.window.Milliseconds())

	switch {
	case ev.Timestamp.Physical > nowMs+driftTol:
		// Future anomaly: buffered optimistically, assuming the skew
		// self-corrects before the window elapses.
		s.insert(ev)
	case ev.Timestamp.Physical < nowMs && nowMs-ev.Timestamp.Physical > windowMs:
		// Too old to reorder usefully; deliver out of band rather than drop.
		s.stats.late++
		s.stats.delivered++
		s.setLastDelivered(ev.Timestamp)
		s.host.record(OutcomeLate, ev)
		s.deliverNow(ev)
		return
	default:
		s.insert(ev)
	}

	if s.buf.len() >= s.cfg.MaxBufferSize {
		s.host.log().Warn("buffer full, forcing flush",
			"tier", string(s.tier), "size", s.buf.len(), "max", s.cfg.MaxBufferSize)
		s.flushAll(true)
		return
	}

	s.ensureTimer()
}

func (s *shard) insert(ev *event.Event) {
	s.buf.insert(ev)
	s.stats.buffered++
}

func (s *shard) ensureTimer() {
	if s.timerPending || s.buf.len() == 0 {
		return
	}
	s.timerPending = true
	s.timer = s.host.schedule(s.tier, s.window)
}

func (s *shard) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerPending = false
}

// onTimer delivers every entry older than the window cutoff, adapts the
// window, and reschedules if anything remains buffered.
func (s *shard) onTimer() {
	s.timerPending = false
	s.timer = nil

	nowMs := uint64(s.host.now().UnixMilli())
	windowMs := uint64(s.window.Milliseconds())
	var cutoff uint64
	if nowMs > windowMs {
		cutoff = nowMs - windowMs
	}

	s.stats.sampleDepth(s.buf.len())
	ready := s.buf.popReady(cutoff)
	if len(ready) > 0 {
		s.deliverEntries(ready)
		if s.cfg.Adaptive {
			s.adapt(ready)
		}
	}

	s.ensureTimer()
}

// flushAll evacuates the entire buffer, ready or not, cancelling any
// pending timer. Used for the overflow guard (adapt=true, it counts as a
// delivery cycle) and for explicit Flush (adapt=false).
func (s *shard) flushAll(adapt bool) {
	s.cancelTimer()
	if s.buf.len() == 0 {
		return
	}
	s.stats.sampleDepth(s.buf.len())
	all := s.buf.drain()
	s.deliverEntries(all)
	if adapt && s.cfg.Adaptive {
		s.adapt(all)
	}
}

// deliverEntries sends entries in order, in batches of at most BatchSize.
func (s *shard) deliverEntries(entries []entry) {
	for start := 0; start < len(entries); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		var d Delivery
		if len(chunk) == 1 {
			d = Delivery{Kind: KindOrderedEvent, Event: chunk[0].ev}
		} else {
			events := make([]*event.Event, len(chunk))
			for i, e := range chunk {
				events[i] = e.ev
			}
			d = Delivery{Kind: KindOrderedEventBatch, Events: events}
		}

		if err := s.host.deliver(d); err != nil {
			s.stats.dropped += uint64(len(chunk))
			for _, e := range chunk {
				s.host.record(OutcomeDropped, e.ev)
			}
			continue
		}

		s.stats.delivered += uint64(len(chunk))
		for _, e := range chunk {
			s.host.record(OutcomeDelivered, e.ev)
		}
		s.setLastDelivered(chunk[len(chunk)-1].key)
	}
}

// deliverNow sends a single event outside the ordered stream (bypass or
// late). Delivery failures are counted, never retried.
func (s *shard) deliverNow(ev *event.Event) {
	if err := s.host.deliver(Delivery{Kind: KindOrderedEvent, Event: ev}); err != nil {
		s.stats.dropped++
		s.host.record(OutcomeDropped, ev)
	}
}

func (s *shard) setLastDelivered(ts hlc.Timestamp) {
	t := ts
	s.lastDelivered = &t
}

// adapt re-tunes the window from the reorder ratio of the just-delivered
// entries and the buffered-event rate since shard creation.
func (s *shard) adapt(delivered []entry) {
	var outOfOrder int
	for _, e := range delivered {
		if e.outOfOrder {
			outOfOrder++
		}
	}
	ratio := float64(outOfOrder) / float64(len(delivered))
	s.stats.lastReorderRatio = ratio

	elapsed := s.host.now().Sub(s.createdAt).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(s.stats.buffered) / elapsed
	}

	s.window = s.cfg.Adapt.Next(s.window, ratio, rate, s.cfg.MinWindow, s.cfg.MaxWindow)
}

func (s *shard) snapshot() Snapshot {
	return s.stats.snapshot(s.tier, s.buf.len(), s.window)
}
