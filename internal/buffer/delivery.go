package buffer

import "github.com/causewayio/causeway/internal/event"

// DeliveryKind distinguishes single-event deliveries from ordered batches.
type DeliveryKind string

const (
	// KindOrderedEvent carries exactly one event (bypass, late, or a
	// single-element batch).
	KindOrderedEvent DeliveryKind = "ordered_event"

	// KindOrderedEventBatch carries a batch of events in delivery order.
	KindOrderedEventBatch DeliveryKind = "ordered_event_batch"
)

// Delivery is the message handed to a subscriber. Exactly one of Event and
// Events is set, matching Kind.
type Delivery struct {
	Kind   DeliveryKind   `json:"kind"`
	Event  *event.Event   `json:"event,omitempty"`
	Events []*event.Event `json:"events,omitempty"`
}

// Subscriber is the delivery target of a buffer. Deliver is called from the
// buffer's actor goroutine; implementations should return quickly and must
// not call back into the buffer. Done is closed when the subscriber goes
// away, which triggers buffer teardown via the supervisor.
type Subscriber interface {
	ID() string
	Deliver(Delivery) error
	Done() <-chan struct{}
}

// Ordering is the surface shared by Buffer and Partitioned, used by the
// supervisor to manage either kind uniformly.
type Ordering interface {
	Submit(ev *event.Event)
	Flush()
	Stop()
}

// Outcome labels what happened to a submitted event, for stats and the
// delivery journal.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeBypassed  Outcome = "bypassed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeLate      Outcome = "late"
	OutcomeDropped   Outcome = "dropped"
)

// Recorder receives per-event outcomes. The SQLite journal implements it;
// buffers treat it as optional observability and never let it fail a
// delivery.
type Recorder interface {
	Record(subscriber string, outcome Outcome, ev *event.Event)
}
