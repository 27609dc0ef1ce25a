package llmstream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60*time.Second, cfg.StreamIdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 16, cfg.ChannelCapacity)
	assert.Equal(t, 8, cfg.MaxToolRounds)
	assert.Equal(t, 4, cfg.MaxParallelTools)
	assert.True(t, cfg.EstimateMissingUsage)
	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile_Overrides(t *testing.T) {
	path := writeConfig(t, "tool_timeout: 5s\nmax_tool_rounds: 2\nestimate_missing_usage: false\n")

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 2, cfg.MaxToolRounds)
	assert.False(t, cfg.EstimateMissingUsage)

	// Absent keys keep their defaults
	assert.Equal(t, 60*time.Second, cfg.StreamIdleTimeout)
	assert.Equal(t, 16, cfg.ChannelCapacity)
}

func TestLoadConfigFromFile_Errors(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadConfigFromFile(writeConfig(t, "tool_timeout: [\n"))
	assert.ErrorContains(t, err, "failed to unmarshal config")

	_, err = LoadConfigFromFile(writeConfig(t, "max_parallel_tools: 0\n"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_parallel_tools", verr.Field)
	assert.True(t, IsInvalidRequest(err))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"stream_idle_timeout", func(c *Config) { c.StreamIdleTimeout = 0 }},
		{"tool_timeout", func(c *Config) { c.ToolTimeout = -time.Second }},
		{"channel_capacity", func(c *Config) { c.ChannelCapacity = -1 }},
		{"max_tool_rounds", func(c *Config) { c.MaxToolRounds = 0 }},
		{"max_parallel_tools", func(c *Config) { c.MaxParallelTools = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			var verr *ValidationError
			require.ErrorAs(t, cfg.Validate(), &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	unbuffered := DefaultConfig()
	unbuffered.ChannelCapacity = 0
	assert.NoError(t, unbuffered.Validate())
}
