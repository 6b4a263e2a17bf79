package cli

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/causewayio/causeway/internal/buffer"
)

//go:embed policy_schema.cue
var policySchemaCUE string

// TierPolicy is one decoded policy entry from a CUE policy file.
type TierPolicy struct {
	Tier          string `json:"tier"`
	WindowMs      int64  `json:"window_ms"`
	MinWindowMs   int64  `json:"min_window_ms"`
	MaxWindowMs   int64  `json:"max_window_ms"`
	Adaptive      bool   `json:"adaptive"`
	MaxBufferSize int    `json:"max_buffer_size"`
	BatchSize     int    `json:"batch_size"`
}

// LoadError is a policy loading failure with a stable error code.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadPolicies reads a CUE tier-policy file, unifies it with the embedded
// schema, validates it to concreteness, and decodes the policies list.
func LoadPolicies(path string) ([]TierPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading policy file: %v", err)}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(policySchemaCUE, cue.Filename("policy_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodePolicyLoad, Message: fmt.Sprintf("compiling schema: %v", err)}
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodePolicyLoad, Message: fmt.Sprintf("compiling policy file: %v", err)}
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodePolicyInvalid, Message: fmt.Sprintf("validating policies: %v", err)}
	}

	list := unified.LookupPath(cue.ParsePath("policies"))
	if !list.Exists() {
		return nil, &LoadError{Code: ErrCodePolicyInvalid, Message: "no policies list found"}
	}

	var policies []TierPolicy
	if err := list.Decode(&policies); err != nil {
		return nil, &LoadError{Code: ErrCodePolicyInvalid, Message: fmt.Sprintf("decoding policies: %v", err)}
	}

	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if seen[p.Tier] {
			return nil, &LoadError{Code: ErrCodePolicyInvalid, Message: fmt.Sprintf("duplicate policy for tier %q", p.Tier)}
		}
		seen[p.Tier] = true
		if p.WindowMs < p.MinWindowMs || p.WindowMs > p.MaxWindowMs {
			return nil, &LoadError{Code: ErrCodePolicyInvalid,
				Message: fmt.Sprintf("tier %q: window %dms outside [%d, %d]", p.Tier, p.WindowMs, p.MinWindowMs, p.MaxWindowMs)}
		}
	}
	return policies, nil
}

// ApplyPolicies overlays decoded policies on the built-in tier table and
// returns the effective per-tier configs.
func ApplyPolicies(policies []TierPolicy) map[buffer.Tier]buffer.Config {
	configs := buffer.DefaultTierConfigs()
	for _, p := range policies {
		tier := buffer.Tier(p.Tier)
		cfg := configs[tier]
		cfg.Window = time.Duration(p.WindowMs) * time.Millisecond
		cfg.MinWindow = time.Duration(p.MinWindowMs) * time.Millisecond
		cfg.MaxWindow = time.Duration(p.MaxWindowMs) * time.Millisecond
		cfg.Adaptive = p.Adaptive
		cfg.MaxBufferSize = p.MaxBufferSize
		cfg.BatchSize = p.BatchSize
		configs[tier] = cfg
	}
	return configs
}

// EffectivePolicies renders the tier table (after any overlay) back into
// policy entries in stable tier order, for the policy command.
func EffectivePolicies(configs map[buffer.Tier]buffer.Config) []TierPolicy {
	out := make([]TierPolicy, 0, len(configs))
	for _, tier := range buffer.Tiers() {
		cfg, ok := configs[tier]
		if !ok {
			continue
		}
		out = append(out, TierPolicy{
			Tier:          string(tier),
			WindowMs:      cfg.Window.Milliseconds(),
			MinWindowMs:   cfg.MinWindow.Milliseconds(),
			MaxWindowMs:   cfg.MaxWindow.Milliseconds(),
			Adaptive:      cfg.Adaptive,
			MaxBufferSize: cfg.MaxBufferSize,
			BatchSize:     cfg.BatchSize,
		})
	}
	return out
}
