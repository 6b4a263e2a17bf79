package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/causewayio/causeway/internal/buffer"
	"github.com/causewayio/causeway/internal/event"
)

// Scenario defines one ordering test: a buffer configuration, a sequence of
// steps driving it, and expectations on what came out.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description,omitempty"`

	// StartMs pins the manual clock's initial epoch milliseconds.
	StartMs int64 `yaml:"start_ms"`

	// Buffer overrides the default buffer configuration. Zero fields keep
	// their defaults.
	Buffer BufferSpec `yaml:"buffer,omitempty"`

	// Steps drive the buffer in order.
	Steps []Step `yaml:"steps"`

	// Expected validates the outcome after all steps ran.
	Expected *Expectations `yaml:"expected,omitempty"`
}

// BufferSpec is the YAML shape of a buffer configuration override.
type BufferSpec struct {
	WindowMs      int64 `yaml:"window_ms,omitempty"`
	MinWindowMs   int64 `yaml:"min_window_ms,omitempty"`
	MaxWindowMs   int64 `yaml:"max_window_ms,omitempty"`
	Adaptive      *bool `yaml:"adaptive,omitempty"`
	MaxBufferSize int   `yaml:"max_buffer_size,omitempty"`
	BatchSize     int   `yaml:"batch_size,omitempty"`
}

// Config builds a buffer config from the YAML fields, defaulting zeros.
func (b BufferSpec) Config() buffer.Config {
	cfg := buffer.DefaultConfig()
	if b.WindowMs > 0 {
		cfg.Window = time.Duration(b.WindowMs) * time.Millisecond
	}
	if b.MinWindowMs > 0 {
		cfg.MinWindow = time.Duration(b.MinWindowMs) * time.Millisecond
	}
	if b.MaxWindowMs > 0 {
		cfg.MaxWindow = time.Duration(b.MaxWindowMs) * time.Millisecond
	}
	if b.Adaptive != nil {
		cfg.Adaptive = *b.Adaptive
	}
	if b.MaxBufferSize > 0 {
		cfg.MaxBufferSize = b.MaxBufferSize
	}
	if b.BatchSize > 0 {
		cfg.BatchSize = b.BatchSize
	}
	return cfg
}

// Step is one scenario action. Exactly one field should be set.
type Step struct {
	// Submit stamps and submits an event.
	Submit *SubmitStep `yaml:"submit,omitempty"`

	// AdvanceMs moves the manual clock forward.
	AdvanceMs int64 `yaml:"advance_ms,omitempty"`

	// WaitEvents blocks until the subscriber has received at least this
	// many events in total (timer-driven deliveries are asynchronous).
	WaitEvents int `yaml:"wait_events,omitempty"`

	// Flush forces synchronous delivery of everything still buffered.
	Flush bool `yaml:"flush,omitempty"`
}

// SubmitStep is an explicitly stamped event submission.
type SubmitStep struct {
	PhysicalMs uint64         `yaml:"physical_ms"`
	Logical    uint32         `yaml:"logical,omitempty"`
	Node       string         `yaml:"node"`
	Topic      string         `yaml:"topic,omitempty"`
	Payload    map[string]any `yaml:"payload,omitempty"`
	Metadata   event.Metadata `yaml:"metadata,omitempty"`
}

// Expectations validate a finished scenario.
type Expectations struct {
	// Outcomes maps outcome names to expected counts.
	Outcomes map[string]uint64 `yaml:"outcomes,omitempty"`

	// Order is the expected physical_ms sequence of received events.
	Order []uint64 `yaml:"order,omitempty"`
}

// LoadScenario reads and validates a single scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// LoadScenarios reads every *.yaml scenario under dir, sorted by filename.
func LoadScenarios(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	for _, path := range matches {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if s.StartMs <= 0 {
		return fmt.Errorf("start_ms must be positive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for i, step := range s.Steps {
		set := 0
		if step.Submit != nil {
			set++
			if step.Submit.Node == "" {
				return fmt.Errorf("step %d: submit without node", i)
			}
		}
		if step.AdvanceMs > 0 {
			set++
		}
		if step.WaitEvents > 0 {
			set++
		}
		if step.Flush {
			set++
		}
		if set != 1 {
			return fmt.Errorf("step %d: exactly one action per step, got %d", i, set)
		}
	}
	return nil
}
