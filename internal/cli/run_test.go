package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causewayio/causeway/internal/buffer"
)

func executeRun(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"run"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func decodeDeliveries(t *testing.T, stdout string) []buffer.Delivery {
	t.Helper()
	var out []buffer.Delivery
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		var d buffer.Delivery
		require.NoError(t, json.Unmarshal([]byte(line), &d))
		out = append(out, d)
	}
	return out
}

func TestRun_DeliversStdinEvents(t *testing.T) {
	stdin := `{"topic": "ops1.sensor", "payload": {"reading": 1}}
{"topic": "ops1.sensor", "payload": {"reading": 2}}
{"topic": "priority.alarm", "payload": {"level": 9}, "metadata": {"bypass": true}}
`

	stdout, err := executeRun(t, stdin)
	require.NoError(t, err)

	var events int
	for _, d := range decodeDeliveries(t, stdout) {
		if d.Event != nil {
			events++
		}
		events += len(d.Events)
	}
	assert.Equal(t, 3, events, "every stdin event is delivered by the final flush")
}

func TestRun_OrdersWithinFlush(t *testing.T) {
	// All three share the local clock's stamps and arrive in order, so the
	// flush preserves submission order.
	stdin := `{"topic": "ops1.a", "payload": {"n": 1}}
{"topic": "ops1.b", "payload": {"n": 2}}
{"topic": "ops1.c", "payload": {"n": 3}}
`

	stdout, err := executeRun(t, stdin)
	require.NoError(t, err)

	var topics []string
	for _, d := range decodeDeliveries(t, stdout) {
		if d.Event != nil {
			topics = append(topics, d.Event.Topic)
		}
		for _, ev := range d.Events {
			topics = append(topics, ev.Topic)
		}
	}
	assert.Equal(t, []string{"ops1.a", "ops1.b", "ops1.c"}, topics)
}

func TestRun_SkipsMalformedLines(t *testing.T) {
	stdin := `not json at all
{"payload": {"n": 1}}
{"topic": "ops1.ok", "payload": {"n": 2}}
`

	stdout, err := executeRun(t, stdin)
	require.NoError(t, err)

	deliveries := decodeDeliveries(t, stdout)
	require.Len(t, deliveries, 1)
}

func TestRun_EmptyInput(t *testing.T) {
	stdout, err := executeRun(t, "")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(stdout))
}

func TestRun_ConfigPlainMode(t *testing.T) {
	cfgPath := writeTempFile(t, "causeway.yaml", `
buffer:
  mode: plain
  window_ms: 20
`)
	stdin := `{"topic": "anything.goes", "payload": {"n": 1}}
`

	stdout, err := executeRun(t, stdin, "--config", cfgPath)
	require.NoError(t, err)
	require.NotEmpty(t, decodeDeliveries(t, stdout))
}

func TestRun_JournalRecordsOutcomes(t *testing.T) {
	dbPath := writeTempFile(t, "placeholder", "") + ".db"
	cfgPath := writeTempFile(t, "causeway.yaml", `
journal:
  enabled: true
  path: `+dbPath+`
`)
	stdin := `{"topic": "ops1.sensor", "payload": {"n": 1}}
`

	_, err := executeRun(t, stdin, "--config", cfgPath)
	require.NoError(t, err)

	stats, _, err := executeCommand("stats", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stats, "stdout:")
	assert.Contains(t, stats, "delivered")
}
