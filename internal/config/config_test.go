package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AGENT_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, "anthropic", cfg.Agent.Provider)
	assert.Equal(t, int64(4096), cfg.Agent.MaxTokens)
	assert.Equal(t, 300*time.Second, cfg.Engine.HandlerTimeout)
	assert.Equal(t, int64(16), cfg.Engine.MaxConcurrentHandlers)
	assert.Equal(t, 256, cfg.Engine.EventBufferSize)
	assert.Equal(t, 10, cfg.Manager.MaxRounds)
	assert.Equal(t, 3, cfg.Manager.MaxStalls)
	assert.Equal(t, 1, cfg.Manager.MaxResets)
	assert.Equal(t, time.Hour, cfg.Timeouts.RunTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Timeouts.RecordTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_API_KEY", "test-key")
	t.Setenv("ORCH_HTTP_PORT", "9000")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MANAGER_MAX_ROUNDS", "25")
	t.Setenv("ENGINE_HANDLER_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 25, cfg.Manager.MaxRounds)
	assert.Equal(t, 30*time.Second, cfg.Engine.HandlerTimeout)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("AGENT_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			HTTPPort: 8080,
			GRPCPort: 9090,
			LogLevel: "info",
			Redis:    RedisConfig{Addr: "localhost:6379"},
			Agent:    AgentConfig{Provider: "anthropic", APIKey: "k"},
			Engine:   EngineConfig{EventBufferSize: 256},
			Manager:  ManagerConfig{MaxRounds: 10, MaxStalls: 3, MaxResets: 1},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.HTTPPort = 0
	assert.ErrorContains(t, cfg.Validate(), "HTTP port")

	cfg = base()
	cfg.GRPCPort = 70000
	assert.ErrorContains(t, cfg.Validate(), "gRPC port")

	cfg = base()
	cfg.Redis.Addr = ""
	assert.ErrorContains(t, cfg.Validate(), "redis")

	cfg = base()
	cfg.Agent.Provider = "openai"
	assert.ErrorContains(t, cfg.Validate(), "provider")

	cfg = base()
	cfg.Engine.MaxConcurrentHandlers = -1
	assert.ErrorContains(t, cfg.Validate(), "concurrent")

	cfg = base()
	cfg.Engine.EventBufferSize = 0
	assert.ErrorContains(t, cfg.Validate(), "buffer")

	cfg = base()
	cfg.Manager.MaxStalls = -1
	assert.ErrorContains(t, cfg.Validate(), "loop bounds")

	cfg = base()
	cfg.LogLevel = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "log level")
}

func TestAddrHelpers(t *testing.T) {
	cfg := &Config{HTTPPort: 8080, GRPCPort: 9090}
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}
