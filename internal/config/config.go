package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the orchestrator.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"ORCH_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"ORCH_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Agent backend configuration
	Agent AgentConfig

	// Engine configuration
	Engine EngineConfig

	// Deliberation manager configuration
	Manager ManagerConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// AgentConfig holds model backend configuration.
type AgentConfig struct {
	Provider string `env:"AGENT_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"AGENT_API_KEY"`

	Model     string `env:"AGENT_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	MaxTokens int64  `env:"AGENT_MAX_TOKENS" envDefault:"4096"`
}

// EngineConfig bounds graph execution.
type EngineConfig struct {
	HandlerTimeout        time.Duration `env:"ENGINE_HANDLER_TIMEOUT" envDefault:"300s"`
	MaxConcurrentHandlers int64         `env:"ENGINE_MAX_CONCURRENT_HANDLERS" envDefault:"16"`
	EventBufferSize       int           `env:"ENGINE_EVENT_BUFFER_SIZE" envDefault:"256"`
}

// ManagerConfig bounds the deliberation loop.
type ManagerConfig struct {
	MaxRounds    int           `env:"MANAGER_MAX_ROUNDS" envDefault:"10"`
	MaxStalls    int           `env:"MANAGER_MAX_STALLS" envDefault:"3"`
	MaxResets    int           `env:"MANAGER_MAX_RESETS" envDefault:"1"`
	RoundTimeout time.Duration `env:"MANAGER_ROUND_TIMEOUT" envDefault:"600s"`
}

// TimeoutConfig holds run-level and shutdown timeouts.
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"3600s"`
	RecordTTL       time.Duration `env:"RUN_RECORD_TTL" envDefault:"24h"`
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Agent.APIKey == "" {
		return fmt.Errorf("agent API key is required")
	}
	if c.Agent.Provider != "anthropic" {
		return fmt.Errorf("unsupported agent provider: %s (only 'anthropic' is supported)", c.Agent.Provider)
	}

	if c.Engine.MaxConcurrentHandlers < 0 {
		return fmt.Errorf("max concurrent handlers must not be negative")
	}
	if c.Engine.EventBufferSize < 1 {
		return fmt.Errorf("event buffer size must be at least 1")
	}

	if c.Manager.MaxRounds < 0 || c.Manager.MaxStalls < 0 || c.Manager.MaxResets < 0 {
		return fmt.Errorf("manager loop bounds must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address.
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
