package mcptool

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transports accepted in ServerConfig.Transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerConfig describes one MCP server to connect to.
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
}

// Validate checks that the transport has what it needs.
func (s ServerConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("mcp server: name is required")
	}
	switch s.Transport {
	case TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("mcp server %q: command is required for stdio", s.Name)
		}
	case TransportHTTP:
		if s.URL == "" {
			return fmt.Errorf("mcp server %q: url is required for http", s.Name)
		}
	default:
		return fmt.Errorf("mcp server %q: unsupported transport %q", s.Name, s.Transport)
	}
	return nil
}

// BreakerConfig tunes the per-server circuit breaker.
type BreakerConfig struct {
	// MaxFailures consecutive failed calls open the breaker.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long an open breaker rejects calls before probing.
	Timeout time.Duration `yaml:"timeout"`
	// Interval clears failure counts while closed; zero never clears.
	Interval time.Duration `yaml:"interval"`
}

// Config is the bridge configuration file.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`

	// CallTimeout bounds one call on the server side of the bridge. The
	// engine's tool timeout still applies on top.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// RatePerSecond limits calls per server; zero means unlimited.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// DefaultConfig returns a configuration with no servers.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 30 * time.Second,
		Burst:       1,
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read mcp config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal mcp config: %w", err)
	}
	for _, s := range cfg.Servers {
		if err := s.Validate(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
