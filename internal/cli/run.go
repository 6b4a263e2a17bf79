package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/causewayio/causeway/internal/buffer"
	"github.com/causewayio/causeway/internal/bus"
	"github.com/causewayio/causeway/internal/config"
	"github.com/causewayio/causeway/internal/event"
	"github.com/causewayio/causeway/internal/hlc"
	"github.com/causewayio/causeway/internal/journal"
	"github.com/causewayio/causeway/internal/supervisor"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an ordering node reading events from stdin",
		Long: `Start a causeway node: a bus, a supervisor, and one ordered subscriber
writing deliveries to stdout as JSON lines.

Events are read from stdin, one JSON object per line:

  {"topic": "ops1.sensor", "payload": {"reading": 7}, "metadata": {"intensity": 0.2}}

An optional "timestamp" field carries a remote clock reading in wire form
("2026-01-02T15:04:05.000Z.3@node-b"); it is merged into the local clock
before stamping.

Example:
  causeway run --config ./causeway.yaml < events.jsonl`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (optional)")

	return cmd
}

// inputEvent is one line of the stdin feed.
type inputEvent struct {
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload"`
	Metadata  event.Metadata `json:"metadata"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func runNode(opts *RunOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg := config.Default()
	if opts.ConfigPath != "" {
		read, err := config.Read(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "reading config", err)
		}
		cfg = read
	}
	cfg.PopulateDefaults()
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitFailure, "invalid config", err)
	}

	tierConfigs := buffer.DefaultTierConfigs()
	if cfg.Buffer.PolicyFile != "" {
		policies, err := LoadPolicies(cfg.Buffer.PolicyFile)
		if err != nil {
			return WrapExitError(ExitFailure, "loading policies", err)
		}
		tierConfigs = ApplyPolicies(policies)
		logger.Info("tier policies applied", "file", cfg.Buffer.PolicyFile, "overrides", len(policies))
	}

	clock := hlc.New(cfg.Node.ID, hlc.WithMaxOffset(cfg.Node.MaxClockOffset()))
	logger.Info("clock ready", "node", cfg.Node.ID)

	bufOpts := []buffer.Option{}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, journal.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "opening journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		bufOpts = append(bufOpts, buffer.WithRecorder(j))
		logger.Info("journal ready", "path", cfg.Journal.Path)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	b := bus.New(bus.WithDepth(cfg.Bus.Depth), bus.WithLogger(logger))
	sup := supervisor.New(
		supervisor.WithConfig(cfg.Buffer.ToBufferConfig()),
		supervisor.WithTierConfigs(tierConfigs),
		supervisor.WithBufferOptions(bufOpts...),
		supervisor.WithLogger(logger),
	)
	defer sup.Shutdown()

	mode := supervisor.ModePlain
	if cfg.Buffer.Mode == config.ModePartitioned {
		mode = supervisor.ModePartitioned
	}

	sink := newStdoutSubscriber(cmd.OutOrStdout(), ctx.Done())
	handle := sup.GetOrCreate(sink, mode)

	busSub := b.Subscribe("*")
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ev := range busSub.C() {
			handle.Ordering().Submit(ev)
		}
	}()

	logger.Info("node started", "mode", mode.String())
	err := feed(ctx, cmd.InOrStdin(), clock, b, logger)

	// Input exhausted (or failed): let the pump drain what the bus already
	// accepted, then flush whatever is still buffered before teardown.
	busSub.Cancel()
	<-pumpDone
	handle.Ordering().Flush()
	if err != nil {
		return WrapExitError(ExitFailure, "event feed", err)
	}
	logger.Info("node stopped")
	return nil
}

// feed reads JSON lines from r, stamps them, and publishes to the bus
// until EOF or ctx cancellation. Malformed lines and drift-rejected
// timestamps are logged and skipped.
func feed(ctx context.Context, r io.Reader, clock *hlc.Clock, b *bus.Bus, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var in inputEvent
		if err := json.Unmarshal(raw, &in); err != nil {
			logger.Warn("skipping malformed input line", "line", line, "error", err)
			continue
		}
		if in.Topic == "" {
			logger.Warn("skipping event without topic", "line", line)
			continue
		}

		if in.Timestamp != "" {
			remote, err := hlc.Parse(in.Timestamp)
			if err != nil {
				logger.Warn("skipping event with bad timestamp", "line", line, "error", err)
				continue
			}
			if _, err := clock.Update(remote); err != nil {
				if hlc.IsDriftError(err) {
					logger.Warn("rejecting drifted timestamp", "line", line, "error", err)
					continue
				}
				return fmt.Errorf("clock update: %w", err)
			}
		}

		ev, err := event.New(clock, in.Topic, in.Payload, in.Metadata)
		if err != nil {
			logger.Warn("skipping unstampable event", "line", line, "error", err)
			continue
		}
		b.Publish(in.Topic, ev)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// stdoutSubscriber writes deliveries to stdout as JSON lines. It reports
// done when the run context is cancelled, which lets the supervisor tear
// its buffer down.
type stdoutSubscriber struct {
	w    io.Writer
	done <-chan struct{}
	enc  *json.Encoder
}

func newStdoutSubscriber(w io.Writer, done <-chan struct{}) *stdoutSubscriber {
	return &stdoutSubscriber{w: w, done: done, enc: json.NewEncoder(w)}
}

func (s *stdoutSubscriber) ID() string { return "stdout" }

func (s *stdoutSubscriber) Done() <-chan struct{} { return s.done }

func (s *stdoutSubscriber) Deliver(d buffer.Delivery) error {
	return s.enc.Encode(d)
}
