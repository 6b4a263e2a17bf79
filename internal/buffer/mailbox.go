package buffer

import (
	"sync"

	"github.com/causewayio/causeway/internal/event"
)

type msgKind int

const (
	msgSubmit msgKind = iota + 1
	msgTimer
	msgFlush
	msgFlushTier
	msgStats
)

// message is one mailbox item for a buffer actor. Which fields are set
// depends on kind: submits carry an event, timer fires carry the tier that
// scheduled them, flushes carry a done channel, stats carry a reply channel.
type message struct {
	kind  msgKind
	ev    *event.Event
	tier  Tier
	done  chan struct{}
	reply chan []Snapshot
}

// mailbox is the actor's ordered, unbounded inbox.
//
// It is unbounded so Submit never blocks a producer: overload is handled by
// the buffer's MaxBufferSize flush, not by mailbox backpressure. Enqueue is
// safe from any goroutine while the single actor goroutine dequeues.
//
// The signal channel has capacity 1 and coalesces wake-ups, which lets the
// actor's run loop select on it alongside shutdown.
type mailbox struct {
	mu     sync.Mutex
	msgs   []message
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		msgs:   make([]message, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends a message. Returns false if the mailbox is closed.
func (m *mailbox) enqueue(msg message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.msgs = append(m.msgs, msg)

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue pops the front message without blocking.
func (m *mailbox) tryDequeue() (message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.msgs) == 0 {
		return message{}, false
	}
	msg := m.msgs[0]

	// Clear the slot so the dequeued event's payload can be collected even
	// while the backing array is reused.
	m.msgs[0] = message{}
	if len(m.msgs) == 1 {
		m.msgs = m.msgs[:0]
	} else {
		m.msgs = m.msgs[1:]
	}
	return msg, true
}

// wait returns the wake-up channel for use in the run loop's select.
func (m *mailbox) wait() <-chan struct{} { return m.signal }

// close rejects further enqueues. Messages already queued are left for the
// owner to drain or discard.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}
