package buffer

import (
	"strings"
	"time"

	"github.com/causewayio/causeway/internal/event"
)

// Tier identifies one traffic category inside a partitioned buffer.
type Tier string

// The default tier set: five operational tiers ordered from most to least
// latency-sensitive, the priority-signal tier, and the catch-all meta tier.
const (
	TierOps1     Tier = "ops1"
	TierOps2     Tier = "ops2"
	TierOps3     Tier = "ops3"
	TierOps4     Tier = "ops4"
	TierOps5     Tier = "ops5"
	TierPriority Tier = "priority"
	TierMeta     Tier = "meta"
)

// Tiers returns the default tiers in stable order.
func Tiers() []Tier {
	return []Tier{TierOps1, TierOps2, TierOps3, TierOps4, TierOps5, TierPriority, TierMeta}
}

// ValidTier reports whether s names a default tier.
func ValidTier(s string) bool {
	switch Tier(s) {
	case TierOps1, TierOps2, TierOps3, TierOps4, TierOps5, TierPriority, TierMeta:
		return true
	}
	return false
}

// Router maps events to tiers. Resolution order: the event's explicit
// Category metadata, then the topic lookup table, then TierMeta.
type Router struct {
	exact    map[string]Tier
	prefixes map[string]Tier // keys registered as "prefix.*"
}

// NewRouter builds a router from a topic table. Keys ending in ".*" match
// any topic sharing the prefix; other keys match exactly.
func NewRouter(table map[string]Tier) *Router {
	r := &Router{
		exact:    make(map[string]Tier),
		prefixes: make(map[string]Tier),
	}
	for topic, tier := range table {
		if p, ok := strings.CutSuffix(topic, ".*"); ok {
			r.prefixes[p+"."] = tier
		} else {
			r.exact[topic] = tier
		}
	}
	return r
}

// Route resolves the tier for an event.
func (r *Router) Route(ev *event.Event) Tier {
	if c := ev.Metadata.Category; c != "" && ValidTier(c) {
		return Tier(c)
	}
	if t, ok := r.exact[ev.Topic]; ok {
		return t
	}
	for prefix, t := range r.prefixes {
		if strings.HasPrefix(ev.Topic, prefix) {
			return t
		}
	}
	return TierMeta
}

// DefaultTierConfigs returns the per-tier buffer configuration used when no
// tier policy file overrides it.
//
// The priority tier never batches and never adapts: a 10ms window, a tight
// cap, and batch size 1 keep priority signals close to immediate even when
// they fall below the bypass threshold. Operational tiers trade latency for
// ordering progressively (ops1 tightest, ops5 loosest); the higher tiers
// tolerate latency and so widen their windows less readily. Meta is the
// catch-all middle ground.
func DefaultTierConfigs() map[Tier]Config {
	base := DefaultConfig()

	ops := func(window time.Duration, maxWindow time.Duration, widen float64) Config {
		cfg := base
		cfg.Window = window
		cfg.MaxWindow = maxWindow
		cfg.Adapt.WidenThreshold = widen
		return cfg
	}

	priority := base
	priority.Window = 10 * time.Millisecond
	priority.MinWindow = 5 * time.Millisecond
	priority.MaxWindow = 10 * time.Millisecond
	priority.Adaptive = false
	priority.MaxBufferSize = 100
	priority.BatchSize = 1

	meta := base
	meta.Window = 75 * time.Millisecond

	return map[Tier]Config{
		TierOps1:     ops(50*time.Millisecond, 500*time.Millisecond, 0.1),
		TierOps2:     ops(60*time.Millisecond, 750*time.Millisecond, 0.1),
		TierOps3:     ops(75*time.Millisecond, time.Second, 0.1),
		TierOps4:     ops(90*time.Millisecond, time.Second, 0.2),
		TierOps5:     ops(100*time.Millisecond, time.Second, 0.2),
		TierPriority: priority,
		TierMeta:     meta,
	}
}

// DefaultRouter routes the conventional topic namespaces: "ops<n>.*" to the
// matching tier and "priority.*" to the priority tier. Everything else
// falls through to meta.
func DefaultRouter() *Router {
	return NewRouter(map[string]Tier{
		"ops1.*":     TierOps1,
		"ops2.*":     TierOps2,
		"ops3.*":     TierOps3,
		"ops4.*":     TierOps4,
		"ops5.*":     TierOps5,
		"priority.*": TierPriority,
		"meta.*":     TierMeta,
	})
}
