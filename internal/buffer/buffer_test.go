package buffer_test

import (
	"fmt"
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

// stamped builds an event with an explicit HLC key.
func stamped(t *testing.T, physical uint64, logical uint32, node string, md event.Metadata) *event.Event {
	t.Helper()
	ev, err := event.Stamped(
		hlc.Timestamp{Physical: physical, Logical: logical, NodeID: node},
		"test.topic",
		map[string]any{"physical": int64(physical), "logical": int64(logical)},
		md,
	)
	require.NoError(t, err)
	return ev
}

func testConfig() buffer.Config {
	cfg := buffer.DefaultConfig()
	cfg.Window = 50 * time.Millisecond
	cfg.Adaptive = false
	return cfg
}

func TestBuffer_ReorderingWithinWindow(t *testing.T) {
	clk := testutil.NewManualClock(130)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	// Arrival order 100, 105, 102; delivery order must be 100, 102, 105.
	buf.Submit(stamped(t, 100, 0, "n", event.Metadata{}))
	buf.Submit(stamped(t, 105, 0, "n", event.Metadata{}))
	buf.Submit(stamped(t, 102, 0, "n", event.Metadata{}))

	// Everything is older than the cutoff once the window timer fires.
	clk.Set(200)

	require.Eventually(t, func() bool {
		return len(sub.Events()) == 3
	}, 2*time.Second, 5*time.Millisecond, "window expiry should deliver all three")

	events := sub.Events()
	assert.Equal(t, uint64(100), events[0].Timestamp.Physical)
	assert.Equal(t, uint64(102), events[1].Timestamp.Physical)
	assert.Equal(t, uint64(105), events[2].Timestamp.Physical)
}

func TestBuffer_TotalOrderProperty(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	// Interleaved stamps from two skewed producers, submitted out of order.
	phys := []uint64{990, 1005, 980, 1001, 995, 999, 1002, 985}
	for i, p := range phys {
		node := "a"
		if i%2 == 0 {
			node = "b"
		}
		buf.Submit(stamped(t, p, uint32(i), node, event.Metadata{}))
	}
	buf.Flush()

	events := sub.Events()
	require.Len(t, events, len(phys))
	for i := 1; i < len(events); i++ {
		assert.NotEqual(t, hlc.Greater,
			hlc.Compare(events[i-1].Timestamp, events[i].Timestamp),
			"delivery order must be non-decreasing at index %d", i)
	}
}

func TestBuffer_BypassFlag(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	buf.Submit(stamped(t, 995, 0, "n", event.Metadata{}))
	buf.Submit(stamped(t, 996, 0, "n", event.Metadata{Bypass: true}))

	stats := buf.Stats() // barrier: both submits processed
	assert.Equal(t, uint64(1), stats.Bypassed)
	assert.Equal(t, uint64(1), stats.Buffered)

	events := sub.Events()
	require.Len(t, events, 1, "only the bypass is delivered before the window")
	assert.Equal(t, uint64(996), events[0].Timestamp.Physical)
}

func TestBuffer_PrioritySignalBypass(t *testing.T) {
	clk := testutil.NewManualClock(10_000)
	cfg := testConfig()
	cfg.MaxBufferSize = 2000
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, cfg, buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	// 500 queued in-order events.
	for i := 0; i < 500; i++ {
		buf.Submit(stamped(t, uint64(9990), uint32(i), "n", event.Metadata{}))
	}
	urgent := stamped(t, 9991, 0, "n", event.Metadata{PrioritySignal: true, Intensity: 0.97})
	buf.Submit(urgent)

	stats := buf.Stats()
	assert.Equal(t, uint64(1), stats.Bypassed)
	assert.Equal(t, 500, stats.BufferDepth)

	events := sub.Events()
	require.Len(t, events, 1, "the priority signal must beat the scheduled flush")
	assert.Equal(t, urgent.ID, events[0].ID)

	// The bypassed event must not reappear in the later batch.
	buf.Flush()
	for _, ev := range sub.Events()[1:] {
		assert.NotEqual(t, urgent.ID, ev.ID)
	}
}

func TestBuffer_PrioritySignalBelowThresholdIsBuffered(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	buf.Submit(stamped(t, 999, 0, "n", event.Metadata{PrioritySignal: true, Intensity: 0.5}))

	stats := buf.Stats()
	assert.Equal(t, uint64(0), stats.Bypassed)
	assert.Equal(t, uint64(1), stats.Buffered)
	assert.Empty(t, sub.Events())
}

func TestBuffer_DuplicateSuppression(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	buf.Submit(stamped(t, 995, 3, "n", event.Metadata{}))
	buf.Flush()
	require.Len(t, sub.Events(), 1)

	// Same (physical, logical, node) as the last delivered event.
	buf.Submit(stamped(t, 995, 3, "n", event.Metadata{}))

	stats := buf.Stats()
	assert.Equal(t, uint64(1), stats.Duplicate)
	assert.Len(t, sub.Events(), 1, "duplicate must not be delivered")
}

func TestBuffer_LateDelivery(t *testing.T) {
	clk := testutil.NewManualClock(10_000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	// 9000 is 1000ms old, far beyond the 50ms window.
	buf.Submit(stamped(t, 9000, 0, "n", event.Metadata{}))

	stats := buf.Stats()
	assert.Equal(t, uint64(1), stats.Late)
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, 0, stats.BufferDepth, "late events never touch the buffer")
	require.Len(t, sub.Events(), 1)
}

func TestBuffer_FutureEventBufferedOptimistically(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	cfg := testConfig()
	cfg.ClockDriftTolerance = 100 * time.Millisecond
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, cfg, buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	// 5000 is 4s ahead of the wall clock: a skew anomaly, buffered anyway.
	buf.Submit(stamped(t, 5000, 0, "n", event.Metadata{}))

	stats := buf.Stats()
	assert.Equal(t, uint64(1), stats.Buffered)
	assert.Equal(t, 1, stats.BufferDepth)
	assert.Empty(t, sub.Events())
}

func TestBuffer_OverflowForcesFlush(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	cfg := testConfig()
	cfg.MaxBufferSize = 10
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, cfg, buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	for i := 0; i < 25; i++ {
		buf.Submit(stamped(t, 999, uint32(i), "n", event.Metadata{}))
	}

	stats := buf.Stats()
	assert.Less(t, stats.BufferDepth, 10, "buffer depth stays below the cap at rest")
	assert.GreaterOrEqual(t, stats.Delivered, uint64(20), "overflow flushes deliver synchronously")
}

func TestBuffer_FlushDeliversEverythingIncludingFuture(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	buf.Submit(stamped(t, 995, 0, "n", event.Metadata{}))
	buf.Submit(stamped(t, 5000, 0, "n", event.Metadata{})) // future, not yet ready
	buf.Flush()

	assert.Len(t, sub.Events(), 2, "explicit flush delivers ready and not-yet-ready alike")
}

func TestBuffer_BatchSizeSplitsDeliveries(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	cfg := testConfig()
	cfg.BatchSize = 4
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, cfg, buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	for i := 0; i < 10; i++ {
		buf.Submit(stamped(t, 999, uint32(i), "n", event.Metadata{}))
	}
	buf.Flush()

	deliveries := sub.Deliveries()
	require.Len(t, deliveries, 3, "10 events at batch size 4 = 4+4+2")
	assert.Equal(t, buffer.KindOrderedEventBatch, deliveries[0].Kind)
	assert.Len(t, deliveries[0].Events, 4)
	assert.Len(t, deliveries[2].Events, 2)
	assert.Len(t, sub.Events(), 10)
}

func TestBuffer_SingleEntryFlushIsSingleMessage(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	buf.Submit(stamped(t, 999, 0, "n", event.Metadata{}))
	buf.Flush()

	deliveries := sub.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, buffer.KindOrderedEvent, deliveries[0].Kind)
	require.NotNil(t, deliveries[0].Event)
}

func TestBuffer_DeadSubscriberDropsDeliveries(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	buf.Submit(stamped(t, 999, 0, "n", event.Metadata{}))
	sub.Close()
	buf.Flush()

	stats := buf.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Empty(t, sub.Events())
}

func TestBuffer_StopDropsStateWithoutDelivery(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(), buffer.WithNowFunc(clk.Now))

	buf.Submit(stamped(t, 999, 0, "n", event.Metadata{}))
	buf.Stats() // barrier so the submit is buffered before Stop
	buf.Stop()

	assert.Empty(t, sub.Events(), "teardown must not force delivery")

	// Post-stop calls are best-effort no-ops.
	buf.Submit(stamped(t, 1000, 0, "n", event.Metadata{}))
	buf.Flush()
	buf.Stop()
	assert.Equal(t, buffer.Snapshot{}, buf.Stats())
}

func TestBuffer_StatsRecorder(t *testing.T) {
	clk := testutil.NewManualClock(1000)
	rec := &countingRecorder{counts: map[buffer.Outcome]int{}}
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, testConfig(),
		buffer.WithNowFunc(clk.Now), buffer.WithRecorder(rec))
	defer buf.Stop()

	buf.Submit(stamped(t, 999, 0, "n", event.Metadata{}))
	buf.Submit(stamped(t, 998, 0, "n", event.Metadata{Bypass: true}))
	buf.Flush()

	assert.Equal(t, 1, rec.get(buffer.OutcomeDelivered))
	assert.Equal(t, 1, rec.get(buffer.OutcomeBypassed))
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[buffer.Outcome]int
}

func (r *countingRecorder) Record(_ string, outcome buffer.Outcome, _ *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[outcome]++
}

func (r *countingRecorder) get(o buffer.Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[o]
}

func TestBuffer_AdaptiveWindowWidensOnReordering(t *testing.T) {
	clk := testutil.NewManualClock(130)
	cfg := testConfig()
	cfg.Adaptive = true
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, cfg, buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	// One of three arrives behind the running maximum: ratio 1/3 > 0.1.
	buf.Submit(stamped(t, 100, 0, "n", event.Metadata{}))
	buf.Submit(stamped(t, 105, 0, "n", event.Metadata{}))
	buf.Submit(stamped(t, 102, 0, "n", event.Metadata{}))
	clk.Set(300)

	require.Eventually(t, func() bool {
		return len(sub.Events()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	stats := buf.Stats()
	assert.Equal(t, int64(75), stats.WindowMs, "50ms x 1.5 after a reordered flush")
	assert.InDelta(t, 1.0/3.0, stats.LastReorderRatio, 1e-9)
}

func TestBuffer_SubmitManyDistinctKeysStaysOrdered(t *testing.T) {
	clk := testutil.NewManualClock(100_000)
	cfg := testConfig()
	cfg.MaxBufferSize = 5000
	sub := testutil.NewRecordingSubscriber("sub-1")
	buf := buffer.New(sub, cfg, buffer.WithNowFunc(clk.Now))
	defer buf.Stop()

	// Pseudo-random arrival order over distinct keys.
	for i := 0; i < 200; i++ {
		p := uint64(99_990) + uint64((i*37)%25)
		buf.Submit(stamped(t, p, uint32(i), "n", event.Metadata{}))
	}
	buf.Flush()

	events := sub.Events()
	require.Len(t, events, 200)
	for i := 1; i < len(events); i++ {
		require.NotEqual(t, hlc.Greater,
			hlc.Compare(events[i-1].Timestamp, events[i].Timestamp),
			fmt.Sprintf("out of order at %d", i))
	}
}
