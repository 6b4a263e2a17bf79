package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/causewayio/causeway/internal/buffer"
	"github.com/causewayio/causeway/internal/journal"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database   string
	Subscriber string
	Recent     int
}

// subscriberStats is one subscriber's aggregate in the stats payload.
type subscriberStats struct {
	Subscriber string           `json:"subscriber"`
	Counts     map[string]int64 `json:"counts"`
	Recent     []journal.Entry  `json:"recent,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Read delivery outcomes from the journal",
		Long: `Read per-subscriber delivery outcomes from the journal database.

Example:
  causeway stats --db ./causeway.db
  causeway stats --db ./causeway.db --subscriber alerts --recent 20`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	cmd.Flags().StringVar(&opts.Subscriber, "subscriber", "", "limit to one subscriber")
	cmd.Flags().IntVar(&opts.Recent, "recent", 0, "include the N newest entries per subscriber")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(opts.Database); err != nil {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		formatter.Error(ErrCodeJournal, fmt.Sprintf("opening journal: %v", err), nil)
		return WrapExitError(ExitCommandError, "opening journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()
	subscribers := []string{opts.Subscriber}
	if opts.Subscriber == "" {
		subscribers, err = j.Subscribers(ctx)
		if err != nil {
			formatter.Error(ErrCodeJournal, fmt.Sprintf("listing subscribers: %v", err), nil)
			return WrapExitError(ExitCommandError, "listing subscribers", err)
		}
	}
	sort.Strings(subscribers)

	var all []subscriberStats
	for _, sub := range subscribers {
		counts, err := j.Counts(ctx, sub)
		if err != nil {
			formatter.Error(ErrCodeJournal, fmt.Sprintf("reading counts: %v", err), nil)
			return WrapExitError(ExitCommandError, "reading counts", err)
		}
		s := subscriberStats{Subscriber: sub, Counts: make(map[string]int64, len(counts))}
		for outcome, n := range counts {
			s.Counts[string(outcome)] = n
		}
		if opts.Recent > 0 {
			recent, err := j.Recent(ctx, sub, opts.Recent)
			if err != nil {
				formatter.Error(ErrCodeJournal, fmt.Sprintf("reading recent entries: %v", err), nil)
				return WrapExitError(ExitCommandError, "reading recent entries", err)
			}
			s.Recent = recent
		}
		all = append(all, s)
	}

	if opts.Format == "json" {
		return formatter.Success(all)
	}
	return formatter.Success(renderStats(all))
}

// renderStats formats subscriber aggregates as a text table.
func renderStats(all []subscriberStats) string {
	if len(all) == 0 {
		return "journal is empty"
	}

	outcomes := []buffer.Outcome{
		buffer.OutcomeDelivered,
		buffer.OutcomeBypassed,
		buffer.OutcomeDuplicate,
		buffer.OutcomeLate,
		buffer.OutcomeDropped,
	}

	var b strings.Builder
	for i, s := range all {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s:\n", s.Subscriber)
		for _, o := range outcomes {
			if n, ok := s.Counts[string(o)]; ok {
				fmt.Fprintf(&b, "  %-10s %d\n", string(o), n)
			}
		}
		for _, e := range s.Recent {
			fmt.Fprintf(&b, "  %s %s %s\n", e.RecordedAt.Format("15:04:05.000"), e.Outcome, e.EventID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
