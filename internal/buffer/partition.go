package buffer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/causewayio/causeway/internal/event"
)

// Partitioned runs the ordering algorithm per traffic category: one
// subscriber-facing actor owning N independent shards, each with its own
// window, batch size, stats, timer, and adaptation policy. Heavy traffic on
// one tier cannot delay or grow another tier's buffer.
type Partitioned struct {
	sub    Subscriber
	opts   options
	mbox   *mailbox
	router *Router
	shards map[Tier]*shard
	order  []Tier

	stopOnce sync.Once
	stopping chan struct{}
	stopped  chan struct{}
}

// NewPartitioned creates a partitioned buffer for sub with one shard per
// entry in configs (DefaultTierConfigs for the standard seven) and starts
// its actor goroutine. A nil router falls back to DefaultRouter.
func NewPartitioned(sub Subscriber, configs map[Tier]Config, router *Router, opts ...Option) *Partitioned {
	if configs == nil {
		configs = DefaultTierConfigs()
	}
	if router == nil {
		router = DefaultRouter()
	}
	p := &Partitioned{
		sub:      sub,
		opts:     buildOptions(opts),
		mbox:     newMailbox(),
		router:   router,
		shards:   make(map[Tier]*shard, len(configs)),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	p.opts.logger = p.opts.logger.With("subscriber", sub.ID())

	for _, tier := range Tiers() {
		if cfg, ok := configs[tier]; ok {
			p.shards[tier] = newShard(tier, cfg, (*partitionedHost)(p))
			p.order = append(p.order, tier)
		}
	}
	// Non-default tiers, in map order after the known ones.
	for tier, cfg := range configs {
		if _, ok := p.shards[tier]; !ok {
			p.shards[tier] = newShard(tier, cfg, (*partitionedHost)(p))
			p.order = append(p.order, tier)
		}
	}

	go p.run()
	return p
}

type partitionedHost Partitioned

func (h *partitionedHost) now() time.Time { return h.opts.now() }

func (h *partitionedHost) log() *slog.Logger { return h.opts.logger }

func (h *partitionedHost) record(outcome Outcome, ev *event.Event) {
	if h.opts.recorder != nil {
		h.opts.recorder.Record(h.sub.ID(), outcome, ev)
	}
}

func (h *partitionedHost) deliver(d Delivery) error {
	select {
	case <-h.sub.Done():
		h.opts.logger.Warn("subscriber gone, discarding delivery", "kind", string(d.Kind))
		return errSubscriberGone
	default:
	}
	return h.sub.Deliver(d)
}

func (h *partitionedHost) schedule(tier Tier, d time.Duration) *time.Timer {
	p := (*Partitioned)(h)
	return time.AfterFunc(d, func() {
		p.mbox.enqueue(message{kind: msgTimer, tier: tier})
	})
}

// Submit routes the event to its tier's shard. Never blocks.
func (p *Partitioned) Submit(ev *event.Event) {
	p.mbox.enqueue(message{kind: msgSubmit, ev: ev})
}

// Flush synchronously flushes every tier.
func (p *Partitioned) Flush() {
	done := make(chan struct{})
	if !p.mbox.enqueue(message{kind: msgFlush, done: done}) {
		return
	}
	select {
	case <-done:
	case <-p.stopped:
	}
}

// FlushTier synchronously flushes a single tier; unknown tiers are no-ops.
func (p *Partitioned) FlushTier(tier Tier) {
	done := make(chan struct{})
	if !p.mbox.enqueue(message{kind: msgFlushTier, tier: tier, done: done}) {
		return
	}
	select {
	case <-done:
	case <-p.stopped:
	}
}

// Stats returns one snapshot per tier in stable tier order, or nil if the
// buffer has stopped.
func (p *Partitioned) Stats() []Snapshot {
	reply := make(chan []Snapshot, 1)
	if !p.mbox.enqueue(message{kind: msgStats, reply: reply}) {
		return nil
	}
	select {
	case snaps := <-reply:
		return snaps
	case <-p.stopped:
		return nil
	}
}

// Stop tears down every tier: timers cancelled, buffered state dropped
// without delivery. Idempotent; returns once the actor has exited.
func (p *Partitioned) Stop() {
	p.stopOnce.Do(func() {
		p.mbox.close()
		close(p.stopping)
	})
	<-p.stopped
}

func (p *Partitioned) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.stopping:
			p.cancelAll()
			return
		default:
		}

		if msg, ok := p.mbox.tryDequeue(); ok {
			p.handle(msg)
			continue
		}
		select {
		case <-p.stopping:
			p.cancelAll()
			return
		case <-p.mbox.wait():
		}
	}
}

func (p *Partitioned) cancelAll() {
	for _, s := range p.shards {
		s.cancelTimer()
	}
}

func (p *Partitioned) handle(msg message) {
	switch msg.kind {
	case msgSubmit:
		tier := p.router.Route(msg.ev)
		s, ok := p.shards[tier]
		if !ok {
			// Routed to a tier this buffer was not configured with; the
			// catch-all shard absorbs it if present.
			if s, ok = p.shards[TierMeta]; !ok {
				p.opts.logger.Warn("no shard for tier, dropping event",
					"tier", string(tier), "event", msg.ev.ID)
				return
			}
		}
		s.submit(msg.ev)
	case msgTimer:
		if s, ok := p.shards[msg.tier]; ok {
			s.onTimer()
		}
	case msgFlush:
		for _, tier := range p.order {
			p.shards[tier].flushAll(false)
		}
		close(msg.done)
	case msgFlushTier:
		if s, ok := p.shards[msg.tier]; ok {
			s.flushAll(false)
		}
		close(msg.done)
	case msgStats:
		snaps := make([]Snapshot, 0, len(p.order))
		for _, tier := range p.order {
			snaps = append(snaps, p.shards[tier].snapshot())
		}
		msg.reply <- snaps
	}
}
