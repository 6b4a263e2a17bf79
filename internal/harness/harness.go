package harness

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causewayio/causeway/internal/buffer"
	"github.com/causewayio/causeway/internal/event"
	"github.com/causewayio/causeway/internal/hlc"
	"github.com/causewayio/causeway/internal/testutil"
)

// waitTimeout bounds how long a wait_events step may block. Timer-driven
// deliveries fire on real window durations even though cutoffs come from
// the manual clock.
const waitTimeout = 5 * time.Second

// Result captures everything a finished scenario produced.
type Result struct {
	// Deliveries in the order the subscriber received them.
	Deliveries []buffer.Delivery

	// Events flattens Deliveries.
	Events []*event.Event

	// Outcomes counts recorder callbacks per outcome.
	Outcomes map[buffer.Outcome]uint64

	// Stats is the buffer snapshot taken before teardown.
	Stats buffer.Snapshot
}

// outcomeCounter is a buffer.Recorder accumulating per-outcome totals.
type outcomeCounter struct {
	mu     sync.Mutex
	counts map[buffer.Outcome]uint64
}

func newOutcomeCounter() *outcomeCounter {
	return &outcomeCounter{counts: make(map[buffer.Outcome]uint64)}
}

func (c *outcomeCounter) Record(subscriber string, outcome buffer.Outcome, ev *event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[outcome]++
}

func (c *outcomeCounter) snapshot() map[buffer.Outcome]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[buffer.Outcome]uint64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Run executes the scenario against a fresh buffer and checks its
// expectations. The buffer reads time from a manual clock pinned to
// start_ms and moved only by advance_ms steps.
func Run(t *testing.T, sc *Scenario) *Result {
	t.Helper()

	clock := testutil.NewManualClock(sc.StartMs)
	sub := testutil.NewRecordingSubscriber(sc.Name)
	counter := newOutcomeCounter()

	buf := buffer.New(sub, sc.Buffer.Config(),
		buffer.WithNowFunc(clock.Now),
		buffer.WithRecorder(counter),
	)
	defer buf.Stop()

	for i, step := range sc.Steps {
		switch {
		case step.Submit != nil:
			ev := stampStep(t, step.Submit)
			buf.Submit(ev)
		case step.AdvanceMs > 0:
			clock.Advance(time.Duration(step.AdvanceMs) * time.Millisecond)
		case step.WaitEvents > 0:
			want := step.WaitEvents
			require.Eventuallyf(t, func() bool {
				return len(sub.Events()) >= want
			}, waitTimeout, time.Millisecond,
				"step %d: timed out waiting for %d events", i, want)
		case step.Flush:
			buf.Flush()
		}
	}

	result := &Result{
		Deliveries: sub.Deliveries(),
		Events:     sub.Events(),
		Outcomes:   counter.snapshot(),
		Stats:      buf.Stats(),
	}
	verify(t, sc, result)
	return result
}

func stampStep(t *testing.T, s *SubmitStep) *event.Event {
	t.Helper()
	ts := hlc.Timestamp{Physical: s.PhysicalMs, Logical: s.Logical, NodeID: s.Node}
	ev, err := event.Stamped(ts, s.Topic, s.Payload, s.Metadata)
	require.NoError(t, err)
	return ev
}

func verify(t *testing.T, sc *Scenario, result *Result) {
	t.Helper()
	if sc.Expected == nil {
		return
	}

	for name, want := range sc.Expected.Outcomes {
		got := result.Outcomes[buffer.Outcome(name)]
		assert.Equalf(t, want, got, "outcome %q", name)
	}

	if len(sc.Expected.Order) > 0 {
		got := make([]uint64, len(result.Events))
		for i, ev := range result.Events {
			got[i] = ev.Timestamp.Physical
		}
		assert.Equal(t, sc.Expected.Order, got, "delivery order")
	}
}
