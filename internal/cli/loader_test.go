package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causewayio/causeway/internal/buffer"
)

func writePolicyFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiers.cue")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPolicies_Valid(t *testing.T) {
	path := writePolicyFile(t, `
policies: [
	{tier: "ops1", window_ms: 30},
	{tier: "priority", window_ms: 5, min_window_ms: 5, max_window_ms: 10, adaptive: false, batch_size: 1},
]
`)

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	require.Len(t, policies, 2)

	// Schema defaults fill omitted fields.
	assert.Equal(t, TierPolicy{
		Tier: "ops1", WindowMs: 30, MinWindowMs: 10, MaxWindowMs: 1000,
		Adaptive: true, MaxBufferSize: 1000, BatchSize: 50,
	}, policies[0])
	assert.False(t, policies[1].Adaptive)
	assert.Equal(t, 1, policies[1].BatchSize)
}

func TestLoadPolicies_UnknownTier(t *testing.T) {
	path := writePolicyFile(t, `policies: [{tier: "ops9", window_ms: 30}]`)
	_, err := LoadPolicies(path)
	require.Error(t, err)
	le, ok := err.(*LoadError)
	require.True(t, ok)
	assert.Equal(t, ErrCodePolicyInvalid, le.Code)
}

func TestLoadPolicies_WindowOutOfSchemaRange(t *testing.T) {
	path := writePolicyFile(t, `policies: [{tier: "ops1", window_ms: 90000}]`)
	_, err := LoadPolicies(path)
	require.Error(t, err)
}

func TestLoadPolicies_WindowOutsideBounds(t *testing.T) {
	path := writePolicyFile(t, `policies: [{tier: "ops1", window_ms: 5, min_window_ms: 10}]`)
	_, err := LoadPolicies(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")
}

func TestLoadPolicies_DuplicateTier(t *testing.T) {
	path := writePolicyFile(t, `
policies: [
	{tier: "ops1", window_ms: 30},
	{tier: "ops1", window_ms: 40},
]
`)
	_, err := LoadPolicies(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadPolicies_MissingWindow(t *testing.T) {
	path := writePolicyFile(t, `policies: [{tier: "ops1"}]`)
	_, err := LoadPolicies(path)
	require.Error(t, err, "window_ms has no default and must be concrete")
}

func TestLoadPolicies_MissingFile(t *testing.T) {
	_, err := LoadPolicies(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	le, ok := err.(*LoadError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestLoadPolicies_MalformedCUE(t *testing.T) {
	path := writePolicyFile(t, `policies: [{tier: `)
	_, err := LoadPolicies(path)
	require.Error(t, err)
}

func TestApplyPolicies_OverlaysDefaults(t *testing.T) {
	configs := ApplyPolicies([]TierPolicy{{
		Tier: "ops1", WindowMs: 30, MinWindowMs: 10, MaxWindowMs: 300,
		Adaptive: false, MaxBufferSize: 200, BatchSize: 5,
	}})

	ops1 := configs[buffer.TierOps1]
	assert.Equal(t, 30*time.Millisecond, ops1.Window)
	assert.Equal(t, 300*time.Millisecond, ops1.MaxWindow)
	assert.False(t, ops1.Adaptive)
	assert.Equal(t, 200, ops1.MaxBufferSize)

	// Untouched tiers keep their defaults.
	assert.Equal(t, buffer.DefaultTierConfigs()[buffer.TierOps2], configs[buffer.TierOps2])
}

func TestEffectivePolicies_StableOrder(t *testing.T) {
	effective := EffectivePolicies(buffer.DefaultTierConfigs())
	require.Len(t, effective, 7)
	assert.Equal(t, "ops1", effective[0].Tier)
	assert.Equal(t, "priority", effective[5].Tier)
	assert.Equal(t, "meta", effective[6].Tier)
	assert.Equal(t, int64(10), effective[5].WindowMs)
}
