// Package bus is the in-process publish/subscribe fabric feeding the
// ordering layer. Producers publish stamped events to topics; the
// supervisor subscribes on behalf of ordered consumers.
//
// Publishing is non-blocking: a subscription whose channel is full loses
// the event and its drop counter increments. Slow consumers never stall
// producers; bounded-latency delivery is the ordering buffers' job, not
// the bus's.
package bus

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/causewayio/causeway/internal/event"
)

// DefaultDepth is the per-subscription channel capacity.
const DefaultDepth = 256

// Subscription is one consumer's feed. Receive from C; call Cancel when
// done. After Cancel, C is closed.
type Subscription struct {
	id      string
	pattern string
	ch      chan *event.Event
	bus     *Bus
	dropped atomic.Uint64
	once    sync.Once
}

// ID returns the subscription handle.
func (s *Subscription) ID() string { return s.id }

// C is the event stream.
func (s *Subscription) C() <-chan *event.Event { return s.ch }

// Dropped reports how many events were lost to a full channel.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Cancel removes the subscription from the bus and closes C. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus fans events out to matching subscriptions.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	depth  int
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithDepth overrides the per-subscription channel capacity.
func WithDepth(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.depth = n
		}
	}
}

// WithLogger attaches a logger; defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string]*Subscription),
		depth:  DefaultDepth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers interest in a topic. The pattern is either an exact
// topic or a prefix wildcard like "ops1.*".
func (b *Bus) Subscribe(pattern string) *Subscription {
	sub := &Subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		ch:      make(chan *event.Event, b.depth),
		bus:     b,
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Publish fans ev out to every matching subscription without blocking.
// Returns the number of subscriptions that received the event.
func (b *Bus) Publish(topic string, ev *event.Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		if !match(sub.pattern, topic) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			sub.dropped.Add(1)
			b.logger.Warn("bus: dropping event for slow subscription",
				"subscription", sub.id, "topic", topic)
		}
	}
	return delivered
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
}

func match(pattern, topic string) bool {
	if p, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(topic, p+".")
	}
	if pattern == "*" {
		return true
	}
	return pattern == topic
}
