// Package config reads the node's YAML configuration file.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/causewayio/causeway/internal/buffer"
)

type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Bus     BusConfig     `yaml:"bus"`
	Journal JournalConfig `yaml:"journal"`
}

type NodeConfig struct {
	ID               string `yaml:"id"`
	MaxClockOffsetMs int64  `yaml:"max_clock_offset_ms"`
}

type BufferConfig struct {
	// Mode selects "plain" or "partitioned" buffers for new subscribers.
	Mode string `yaml:"mode"`

	WindowMs                 int64   `yaml:"window_ms"`
	MinWindowMs              int64   `yaml:"min_window_ms"`
	MaxWindowMs              int64   `yaml:"max_window_ms"`
	Adaptive                 *bool   `yaml:"adaptive"`
	MaxBufferSize            int     `yaml:"max_buffer_size"`
	BatchSize                int     `yaml:"batch_size"`
	BypassIntensityThreshold float64 `yaml:"bypass_intensity_threshold"`
	ClockDriftToleranceMs    int64   `yaml:"clock_drift_tolerance_ms"`

	// PolicyFile points at a CUE tier-policy file overriding the built-in
	// tier table for partitioned buffers.
	PolicyFile string `yaml:"policy_file"`
}

type BusConfig struct {
	Depth int `yaml:"depth"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MaxClockOffset returns the drift bound as a duration.
func (c *NodeConfig) MaxClockOffset() time.Duration {
	return time.Duration(c.MaxClockOffsetMs) * time.Millisecond
}

// ToBufferConfig translates the YAML section into the buffer package's
// config, leaving zero fields for its own defaulting.
func (c *BufferConfig) ToBufferConfig() buffer.Config {
	cfg := buffer.Config{
		Window:                   time.Duration(c.WindowMs) * time.Millisecond,
		MinWindow:                time.Duration(c.MinWindowMs) * time.Millisecond,
		MaxWindow:                time.Duration(c.MaxWindowMs) * time.Millisecond,
		MaxBufferSize:            c.MaxBufferSize,
		BatchSize:                c.BatchSize,
		BypassIntensityThreshold: c.BypassIntensityThreshold,
		ClockDriftTolerance:      time.Duration(c.ClockDriftToleranceMs) * time.Millisecond,
	}
	if c.Adaptive != nil {
		cfg.Adaptive = *c.Adaptive
	} else {
		cfg.Adaptive = true
	}
	return cfg
}
