package testutil

import (
	"errors"
	"sync"

	"github.com/causewayio/causeway/internal/buffer"
	"github.com/causewayio/causeway/internal/event"
)

var errDeliveryFailed = errors.New("testutil: delivery failed")

// RecordingSubscriber captures every delivery it receives. Close marks the
// subscriber dead, which buffers and the supervisor observe via Done.
type RecordingSubscriber struct {
	id string

	mu         sync.Mutex
	deliveries []buffer.Delivery

	done      chan struct{}
	closeOnce sync.Once

	// FailDeliveries makes Deliver return an error without recording,
	// simulating a broken delivery target.
	FailDeliveries bool
}

// NewRecordingSubscriber creates a live subscriber with the given id.
func NewRecordingSubscriber(id string) *RecordingSubscriber {
	return &RecordingSubscriber{id: id, done: make(chan struct{})}
}

// ID implements buffer.Subscriber.
func (s *RecordingSubscriber) ID() string { return s.id }

// Done implements buffer.Subscriber.
func (s *RecordingSubscriber) Done() <-chan struct{} { return s.done }

// Deliver implements buffer.Subscriber.
func (s *RecordingSubscriber) Deliver(d buffer.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDeliveries {
		return errDeliveryFailed
	}
	s.deliveries = append(s.deliveries, d)
	return nil
}

// Close marks the subscriber dead. Idempotent.
func (s *RecordingSubscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Deliveries returns a copy of everything received so far.
func (s *RecordingSubscriber) Deliveries() []buffer.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]buffer.Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

// Events flattens all deliveries into a single event slice in the order
// they were received.
func (s *RecordingSubscriber) Events() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*event.Event
	for _, d := range s.deliveries {
		if d.Event != nil {
			out = append(out, d.Event)
		}
		out = append(out, d.Events...)
	}
	return out
}
