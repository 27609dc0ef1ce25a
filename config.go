package llmstream

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/engine.yaml
var defaultConfigYAML []byte

// Config holds the engine's tunables. It is read-only once a pipeline
// starts and may be shared by concurrent runs.
type Config struct {
	// StreamIdleTimeout bounds the wait for the next raw chunk. It is
	// distinct from ToolTimeout: a tool pause is not a hung connection.
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`

	// ToolTimeout bounds each tool invocation independently.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// ChannelCapacity is the number of buffered generic chunks.
	ChannelCapacity int `yaml:"channel_capacity"`

	// MaxToolRounds caps tool round-trips per request.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// MaxParallelTools caps concurrent invocations within one batch.
	MaxParallelTools int `yaml:"max_parallel_tools"`

	// EstimateMissingUsage fills usage from a local tokenizer when a
	// turn reports none.
	EstimateMissingUsage bool `yaml:"estimate_missing_usage"`
}

// DefaultConfig returns the embedded default configuration.
func DefaultConfig() Config {
	cfg, err := parseConfig(defaultConfigYAML, Config{})
	if err != nil {
		// The embedded file is part of the build
		panic(fmt.Sprintf("llmstream: invalid embedded config: %v", err))
	}
	return cfg
}

// LoadConfigFromFile loads a YAML file over the embedded defaults.
// Keys absent from the file keep their default values.
func LoadConfigFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseConfig(data, DefaultConfig())
}

func parseConfig(data []byte, base Config) (Config, error) {
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every limit is usable.
func (c Config) Validate() error {
	switch {
	case c.StreamIdleTimeout <= 0:
		return &ValidationError{Field: "stream_idle_timeout", Value: c.StreamIdleTimeout, Reason: "must be positive", Err: ErrInvalidRequest}
	case c.ToolTimeout <= 0:
		return &ValidationError{Field: "tool_timeout", Value: c.ToolTimeout, Reason: "must be positive", Err: ErrInvalidRequest}
	case c.ChannelCapacity < 0:
		return &ValidationError{Field: "channel_capacity", Value: c.ChannelCapacity, Reason: "must be non-negative", Err: ErrInvalidRequest}
	case c.MaxToolRounds < 1:
		return &ValidationError{Field: "max_tool_rounds", Value: c.MaxToolRounds, Reason: "must be at least 1", Err: ErrInvalidRequest}
	case c.MaxParallelTools < 1:
		return &ValidationError{Field: "max_parallel_tools", Value: c.MaxParallelTools, Reason: "must be at least 1", Err: ErrInvalidRequest}
	}
	return nil
}
