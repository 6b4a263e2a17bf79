package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/causewayio/causeway/internal/buffer"
)

// PolicyOptions holds flags for the policy command.
type PolicyOptions struct {
	*RootOptions
	PolicyFile string
}

// NewPolicyCommand creates the policy command.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PolicyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print effective tier policies",
		Long: `Print the effective per-tier buffer policies: the built-in tier table,
optionally overlaid with a CUE policy file.

Example:
  causeway policy
  causeway policy --policies ./tiers.cue --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicy(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PolicyFile, "policies", "", "path to CUE tier-policy file")

	return cmd
}

func runPolicy(opts *PolicyOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	configs := buffer.DefaultTierConfigs()
	if opts.PolicyFile != "" {
		policies, err := LoadPolicies(opts.PolicyFile)
		if err != nil {
			code := ErrCodePolicyLoad
			if le, ok := err.(*LoadError); ok {
				code = le.Code
			}
			formatter.Error(code, err.Error(), nil)
			return WrapExitError(ExitFailure, "invalid policies", err)
		}
		configs = ApplyPolicies(policies)
		formatter.VerboseLog("applied %d overrides from %s", len(policies), opts.PolicyFile)
	}

	effective := EffectivePolicies(configs)
	if opts.Format == "json" {
		return formatter.Success(effective)
	}
	return formatter.Success(renderPolicies(effective))
}

// renderPolicies formats the tier table as aligned text.
func renderPolicies(policies []TierPolicy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %8s %8s %8s %9s %6s %6s\n",
		"TIER", "WINDOW", "MIN", "MAX", "ADAPTIVE", "CAP", "BATCH")
	for _, p := range policies {
		fmt.Fprintf(&b, "%-10s %6dms %6dms %6dms %9t %6d %6d\n",
			p.Tier, p.WindowMs, p.MinWindowMs, p.MaxWindowMs, p.Adaptive, p.MaxBufferSize, p.BatchSize)
	}
	return strings.TrimRight(b.String(), "\n")
}
