package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/causewayio/causeway/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigPath string
}

// validateResult is the data payload for validate output.
type validateResult struct {
	Config   string `json:"config"`
	Policies int    `json:"policies"`
	Mode     string `json:"mode"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config and tier policies",
		Long: `Validate the node configuration file and, when one is referenced,
the CUE tier-policy file.

Example:
  causeway validate --config ./causeway.yaml
  causeway validate --config ./causeway.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Read(opts.ConfigPath)
	if err != nil {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("reading config: %v", err), nil)
		return WrapExitError(ExitCommandError, "reading config", err)
	}
	cfg.PopulateDefaults()
	if err := cfg.Validate(); err != nil {
		formatter.Error(ErrCodeConfig, fmt.Sprintf("invalid config: %v", err), nil)
		return WrapExitError(ExitFailure, "invalid config", err)
	}
	formatter.VerboseLog("config ok: %s", opts.ConfigPath)

	policyCount := 0
	if cfg.Buffer.PolicyFile != "" {
		policies, err := LoadPolicies(cfg.Buffer.PolicyFile)
		if err != nil {
			code := ErrCodePolicyLoad
			if le, ok := err.(*LoadError); ok {
				code = le.Code
			}
			formatter.Error(code, err.Error(), nil)
			return WrapExitError(ExitFailure, "invalid policies", err)
		}
		policyCount = len(policies)
		formatter.VerboseLog("policies ok: %s (%d entries)", cfg.Buffer.PolicyFile, policyCount)
	}

	if opts.Format == "json" {
		return formatter.Success(validateResult{
			Config:   opts.ConfigPath,
			Policies: policyCount,
			Mode:     cfg.Buffer.Mode,
		})
	}
	return formatter.Success(fmt.Sprintf("ok: %s (mode %s, %d policy overrides)",
		opts.ConfigPath, cfg.Buffer.Mode, policyCount))
}
