package config

import (
	"github.com/causewayio/causeway/internal/bus"
	"github.com/causewayio/causeway/internal/hlc"
)

const (
	ModePlain       = "plain"
	ModePartitioned = "partitioned"
)

var defaultNode = NodeConfig{
	MaxClockOffsetMs: 60_000,
}

var defaultBuffer = BufferConfig{
	Mode:                     ModePartitioned,
	WindowMs:                 50,
	MinWindowMs:              10,
	MaxWindowMs:              1000,
	MaxBufferSize:            1000,
	BatchSize:                50,
	BypassIntensityThreshold: 0.95,
	ClockDriftToleranceMs:    1000,
}

var defaultBus = BusConfig{
	Depth: bus.DefaultDepth,
}

var defaultJournal = JournalConfig{
	Enabled: false,
	Path:    "causeway.db",
}

func Default() *Config {
	return &Config{
		Node:    defaultNode,
		Buffer:  defaultBuffer,
		Bus:     defaultBus,
		Journal: defaultJournal,
	}
}

func (c *NodeConfig) PopulateDefaults() {
	if c.ID == "" {
		c.ID = hlc.NodeID()
	}

	if c.MaxClockOffsetMs == 0 {
		c.MaxClockOffsetMs = defaultNode.MaxClockOffsetMs
	}
}

func (c *BufferConfig) PopulateDefaults() {
	if c.Mode == "" {
		c.Mode = defaultBuffer.Mode
	}

	if c.WindowMs == 0 {
		c.WindowMs = defaultBuffer.WindowMs
	}

	if c.MinWindowMs == 0 {
		c.MinWindowMs = defaultBuffer.MinWindowMs
	}

	if c.MaxWindowMs == 0 {
		c.MaxWindowMs = defaultBuffer.MaxWindowMs
	}

	if c.MaxBufferSize == 0 {
		c.MaxBufferSize = defaultBuffer.MaxBufferSize
	}

	if c.BatchSize == 0 {
		c.BatchSize = defaultBuffer.BatchSize
	}

	if c.BypassIntensityThreshold == 0 {
		c.BypassIntensityThreshold = defaultBuffer.BypassIntensityThreshold
	}

	if c.ClockDriftToleranceMs == 0 {
		c.ClockDriftToleranceMs = defaultBuffer.ClockDriftToleranceMs
	}
}

func (c *BusConfig) PopulateDefaults() {
	if c.Depth == 0 {
		c.Depth = defaultBus.Depth
	}
}

func (c *JournalConfig) PopulateDefaults() {
	if c.Enabled && c.Path == "" {
		c.Path = defaultJournal.Path
	}
}

func (c *Config) PopulateDefaults() {
	c.Node.PopulateDefaults()
	c.Buffer.PopulateDefaults()
	c.Bus.PopulateDefaults()
	c.Journal.PopulateDefaults()
}
