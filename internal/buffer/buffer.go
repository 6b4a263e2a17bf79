package buffer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/causewayio/causeway/internal/event"
)

// errSubscriberGone marks deliveries discarded because the subscriber's
// Done channel closed. Internal: callers only ever see the drop counter.
var errSubscriberGone = errors.New("buffer: subscriber gone")

// options collects the cross-cutting dependencies shared by Buffer and
// Partitioned.
type options struct {
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Buffer or Partitioned at construction.
type Option func(*options)

// WithLogger attaches a logger; defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder attaches a delivery journal recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithNowFunc substitutes the wall-clock source for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Buffer is the generic per-subscriber ordering buffer: a single-writer
// actor owning one shard. Create with New, feed with Submit, and Stop when
// the subscriber goes away.
type Buffer struct {
	sub   Subscriber
	opts  options
	mbox  *mailbox
	shard *shard

	stopOnce sync.Once
	stopping chan struct{}
	stopped  chan struct{}
}

// New creates a buffer for sub and starts its actor goroutine.
func New(sub Subscriber, cfg Config, opts ...Option) *Buffer {
	b := &Buffer{
		sub:      sub,
		opts:     buildOptions(opts),
		mbox:     newMailbox(),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	b.opts.logger = b.opts.logger.With("subscriber", sub.ID())
	b.shard = newShard("", cfg, (*bufferHost)(b))
	go b.run()
	return b
}

// bufferHost adapts Buffer to the shard's host hooks without exposing them
// on the public type.
type bufferHost Buffer

func (h *bufferHost) now() time.Time { return h.opts.now() }

func (h *bufferHost) log() *slog.Logger { return h.opts.logger }

func (h *bufferHost) record(outcome Outcome, ev *event.Event) {
	if h.opts.recorder != nil {
		h.opts.recorder.Record(h.sub.ID(), outcome, ev)
	}
}

func (h *bufferHost) deliver(d Delivery) error {
	select {
	case <-h.sub.Done():
		h.opts.logger.Warn("subscriber gone, discarding delivery", "kind", string(d.Kind))
		return errSubscriberGone
	default:
	}
	return h.sub.Deliver(d)
}

func (h *bufferHost) schedule(tier Tier, d time.Duration) *time.Timer {
	b := (*Buffer)(h)
	return time.AfterFunc(d, func() {
		b.mbox.enqueue(message{kind: msgTimer, tier: tier})
	})
}

// Submit hands an event to the buffer. It never blocks; events submitted
// after Stop are silently discarded (best effort during teardown).
func (b *Buffer) Submit(ev *event.Event) {
	b.mbox.enqueue(message{kind: msgSubmit, ev: ev})
}

// Flush synchronously delivers the entire buffer, ready or not, and cancels
// any pending timer. It returns once delivery has completed (or the buffer
// has stopped).
func (b *Buffer) Flush() {
	done := make(chan struct{})
	if !b.mbox.enqueue(message{kind: msgFlush, done: done}) {
		return
	}
	select {
	case <-done:
	case <-b.stopped:
	}
}

// Stats returns a snapshot of the buffer's counters, or the zero snapshot
// if the buffer has stopped.
func (b *Buffer) Stats() Snapshot {
	reply := make(chan []Snapshot, 1)
	if !b.mbox.enqueue(message{kind: msgStats, reply: reply}) {
		return Snapshot{}
	}
	select {
	case snaps := <-reply:
		return snaps[0]
	case <-b.stopped:
		return Snapshot{}
	}
}

// Stop tears the buffer down: the timer is cancelled and buffered state is
// dropped without delivery (there is no one left to receive it). Stop is
// idempotent and returns once the actor goroutine has exited.
func (b *Buffer) Stop() {
	b.stopOnce.Do(func() {
		b.mbox.close()
		close(b.stopping)
	})
	<-b.stopped
}

func (b *Buffer) run() {
	defer close(b.stopped)
	for {
		// Teardown wins over queued work: buffered state is dropped, not
		// force-delivered.
		select {
		case <-b.stopping:
			b.shard.cancelTimer()
			return
		default:
		}

		if msg, ok := b.mbox.tryDequeue(); ok {
			b.handle(msg)
			continue
		}
		select {
		case <-b.stopping:
			b.shard.cancelTimer()
			return
		case <-b.mbox.wait():
		}
	}
}

func (b *Buffer) handle(msg message) {
	switch msg.kind {
	case msgSubmit:
		b.shard.submit(msg.ev)
	case msgTimer:
		b.shard.onTimer()
	case msgFlush:
		b.shard.flushAll(false)
		close(msg.done)
	case msgStats:
		msg.reply <- []Snapshot{b.shard.snapshot()}
	}
}
