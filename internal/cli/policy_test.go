package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_DefaultTable(t *testing.T) {
	stdout, _, err := executeCommand("policy")
	require.NoError(t, err)

	assert.Contains(t, stdout, "TIER")
	assert.Contains(t, stdout, "ops1")
	assert.Contains(t, stdout, "priority")
	assert.Contains(t, stdout, "meta")
}

func TestPolicy_JSONOutput(t *testing.T) {
	stdout, _, err := executeCommand("policy", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []TierPolicy `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 7)
	assert.Equal(t, "ops1", resp.Data[0].Tier)
	assert.Equal(t, int64(50), resp.Data[0].WindowMs)
	assert.Equal(t, int64(10), resp.Data[5].WindowMs, "priority window")
	assert.False(t, resp.Data[5].Adaptive)
}

func TestPolicy_WithOverrides(t *testing.T) {
	policyPath := writePolicyFile(t, `policies: [{tier: "ops1", window_ms: 33}]`)

	stdout, _, err := executeCommand("policy", "--policies", policyPath, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []TierPolicy `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, int64(33), resp.Data[0].WindowMs)
	assert.Equal(t, int64(60), resp.Data[1].WindowMs, "other tiers untouched")
}

func TestPolicy_BadFile(t *testing.T) {
	policyPath := writePolicyFile(t, `policies: [{tier: "ops1"}]`)

	_, _, err := executeCommand("policy", "--policies", policyPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
