package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causewayio/causeway/internal/event"
)

func routeEvent(topic, category string) *event.Event {
	return &event.Event{
		Topic:    topic,
		Metadata: event.Metadata{Category: category},
	}
}

func TestRouter_CategoryWins(t *testing.T) {
	r := DefaultRouter()
	assert.Equal(t, TierOps4, r.Route(routeEvent("ops1.sensor", "ops4")),
		"explicit category beats the topic table")
}

func TestRouter_InvalidCategoryIgnored(t *testing.T) {
	r := DefaultRouter()
	assert.Equal(t, TierOps1, r.Route(routeEvent("ops1.sensor", "bogus")))
}

func TestRouter_TopicPrefix(t *testing.T) {
	r := DefaultRouter()
	assert.Equal(t, TierOps3, r.Route(routeEvent("ops3.anything.nested", "")))
	assert.Equal(t, TierPriority, r.Route(routeEvent("priority.alarm", "")))
}

func TestRouter_ExactTopic(t *testing.T) {
	r := NewRouter(map[string]Tier{"heartbeat": TierOps5})
	assert.Equal(t, TierOps5, r.Route(routeEvent("heartbeat", "")))
	assert.Equal(t, TierMeta, r.Route(routeEvent("heartbeat.extra", "")),
		"exact keys do not prefix-match")
}

func TestRouter_DefaultsToMeta(t *testing.T) {
	r := DefaultRouter()
	assert.Equal(t, TierMeta, r.Route(routeEvent("unmapped.topic", "")))
	assert.Equal(t, TierMeta, r.Route(routeEvent("", "")))
}

func TestTiers_StableOrder(t *testing.T) {
	require.Equal(t, []Tier{TierOps1, TierOps2, TierOps3, TierOps4, TierOps5, TierPriority, TierMeta}, Tiers())
}

func TestDefaultTierConfigs(t *testing.T) {
	configs := DefaultTierConfigs()
	require.Len(t, configs, 7)

	priority := configs[TierPriority]
	assert.Equal(t, 10*time.Millisecond, priority.Window)
	assert.False(t, priority.Adaptive)
	assert.Equal(t, 100, priority.MaxBufferSize)
	assert.Equal(t, 1, priority.BatchSize, "priority signals are never batched")

	assert.Equal(t, 50*time.Millisecond, configs[TierOps1].Window)
	assert.Equal(t, 100*time.Millisecond, configs[TierOps5].Window)
	assert.Equal(t, 75*time.Millisecond, configs[TierMeta].Window)

	for tier, cfg := range configs {
		assert.NoError(t, cfg.Validate(), "tier %s", tier)
	}

	// Latency-tolerant tiers widen less readily.
	assert.Greater(t, configs[TierOps5].Adapt.WidenThreshold, configs[TierOps1].Adapt.WidenThreshold)
}
