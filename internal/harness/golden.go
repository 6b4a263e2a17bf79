package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/causewayio/causeway/internal/event"
)

// RunWithGolden executes a scenario and pins its full delivery trace to a
// golden file at testdata/golden/{name}.golden. The trace is serialized
// canonically, so a byte diff means the delivery behavior changed.
func RunWithGolden(t *testing.T, sc *Scenario) *Result {
	t.Helper()

	result := Run(t, sc)

	trace := make([]any, len(result.Deliveries))
	for i, d := range result.Deliveries {
		events := d.Events
		if d.Event != nil {
			events = []*event.Event{d.Event}
		}
		items := make([]any, len(events))
		for j, ev := range events {
			items[j] = map[string]any{
				"physical": ev.Timestamp.Physical,
				"logical":  ev.Timestamp.Logical,
				"node":     ev.Timestamp.NodeID,
			}
		}
		trace[i] = map[string]any{
			"kind":   string(d.Kind),
			"events": items,
		}
	}

	snapshot := map[string]any{
		"scenario_name": sc.Name,
		"trace":         trace,
	}
	data, err := event.MarshalCanonical(snapshot)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, data)

	return result
}
