package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causewayio/causeway/internal/event"
	"github.com/causewayio/causeway/internal/hlc"
)

func busEvent(topic string) *event.Event {
	return &event.Event{
		ID:        topic,
		Timestamp: hlc.Timestamp{Physical: 100, NodeID: "n"},
		Topic:     topic,
	}
}

func TestBus_ExactTopic(t *testing.T) {
	b := New()
	sub := b.Subscribe("ops1.sensor")
	defer sub.Cancel()

	assert.Equal(t, 1, b.Publish("ops1.sensor", busEvent("ops1.sensor")))
	assert.Equal(t, 0, b.Publish("ops1.other", busEvent("ops1.other")))

	ev := <-sub.C()
	assert.Equal(t, "ops1.sensor", ev.Topic)
}

func TestBus_PrefixWildcard(t *testing.T) {
	b := New()
	sub := b.Subscribe("ops1.*")
	defer sub.Cancel()

	assert.Equal(t, 1, b.Publish("ops1.sensor", busEvent("ops1.sensor")))
	assert.Equal(t, 1, b.Publish("ops1.deep.nested", busEvent("ops1.deep.nested")))
	assert.Equal(t, 0, b.Publish("ops1", busEvent("ops1")), "bare prefix does not match")
	assert.Equal(t, 0, b.Publish("ops2.sensor", busEvent("ops2.sensor")))
}

func TestBus_MatchAll(t *testing.T) {
	b := New()
	sub := b.Subscribe("*")
	defer sub.Cancel()

	assert.Equal(t, 1, b.Publish("anything", busEvent("anything")))
	assert.Equal(t, 1, b.Publish("ops3.x", busEvent("ops3.x")))
}

func TestBus_FanOut(t *testing.T) {
	b := New()
	first := b.Subscribe("ops1.*")
	second := b.Subscribe("ops1.sensor")
	defer first.Cancel()
	defer second.Cancel()

	assert.Equal(t, 2, b.Publish("ops1.sensor", busEvent("ops1.sensor")))
	assert.Equal(t, "ops1.sensor", (<-first.C()).Topic)
	assert.Equal(t, "ops1.sensor", (<-second.C()).Topic)
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	b := New(WithDepth(2))
	sub := b.Subscribe("ops1.*")
	defer sub.Cancel()

	for i := 0; i < 5; i++ {
		b.Publish("ops1.sensor", busEvent("ops1.sensor"))
	}
	assert.Equal(t, uint64(3), sub.Dropped())

	// The two buffered events are intact.
	<-sub.C()
	<-sub.C()
	select {
	case <-sub.C():
		t.Fatal("channel should be empty")
	default:
	}
}

func TestBus_CancelIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe("ops1.*")

	sub.Cancel()
	sub.Cancel()

	assert.Equal(t, 0, b.Publish("ops1.sensor", busEvent("ops1.sensor")))
	_, open := <-sub.C()
	assert.False(t, open, "channel closes on cancel")
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := New(WithDepth(2048))
	sub := b.Subscribe("ops1.*")
	defer sub.Cancel()

	const goroutines = 8
	const each = 100
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				b.Publish("ops1.sensor", busEvent("ops1.sensor"))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(0), sub.Dropped())
	count := 0
	for {
		select {
		case <-sub.C():
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, goroutines*each, count)
}
