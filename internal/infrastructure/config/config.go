package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. ENVTRACE_SERVER_PORT.
const Prefix = "ENVTRACE"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Logging   LogConfig       `envconfig:"LOG"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	Sandbox   SandboxConfig   `envconfig:"SANDBOX"`
	Proxy     ProxyConfig     `envconfig:"PROXY"`
	Network   NetworkConfig   `envconfig:"NETWORK"`

	// Profile is an optional YAML, TOML or JSON profile file.
	Profile string `envconfig:"PROFILE"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RPS" default:"100"`
	Burst             int  `envconfig:"BURST" default:"200"`
	Enabled           bool `envconfig:"ENABLED" default:"true"`
	// Global shares one bucket across all clients instead of one per IP.
	Global bool `envconfig:"GLOBAL" default:"false"`
}

// SandboxConfig sizes the runtime pool and bounds script execution.
type SandboxConfig struct {
	PoolSize       int           `envconfig:"POOL_SIZE" default:"4"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"5s"`
	AcquireTimeout time.Duration `envconfig:"ACQUIRE_TIMEOUT" default:"5s"`
	MaxCallStack   int           `envconfig:"MAX_CALL_STACK" default:"1024"`
	Helpers        bool          `envconfig:"HELPERS" default:"true"`
}

// ProxyConfig is the environment form of the interception options.
// An empty Paths list installs nothing.
type ProxyConfig struct {
	Paths      []string `envconfig:"PATHS"`
	Level      string   `envconfig:"LEVEL" default:"1"`
	Operations []string `envconfig:"OPERATIONS"`
	Ignore     []string `envconfig:"IGNORE"`
	Deep       bool     `envconfig:"DEEP" default:"true"`
	Color      string   `envconfig:"COLOR" default:"auto"` // auto, always, never
}

// NetworkConfig selects how XMLHttpRequest traffic leaves the runtime.
type NetworkConfig struct {
	Mode       string        `envconfig:"MODE" default:"offline"` // offline, live
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"2"`
	RateLimit  float64       `envconfig:"RATE_LIMIT" default:"5"`

	// Per-host circuit breaker for live mode.
	BreakerThreshold int           `envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sandbox: SandboxConfig{
			PoolSize:       4,
			Timeout:        5 * time.Second,
			AcquireTimeout: 5 * time.Second,
			MaxCallStack:   1024,
			Helpers:        true,
		},
		Proxy: ProxyConfig{
			Level: "1",
			Deep:  true,
			Color: "auto",
		},
		Network: NetworkConfig{
			Mode:       "offline",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
			RateLimit:  5,

			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
	}
}
