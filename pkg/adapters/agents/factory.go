// Package agents provides model backend implementations of the AgentClient
// port, plus the agent-backed planner for the deliberation loop.
package agents

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/adapters/agents/anthropic"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// Config holds agent backend configuration.
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	MaxTokens int64
	Metrics   ports.MetricsCollector
	Logger    *zap.Logger
}

// NewClient creates an agent client for the configured provider.
func NewClient(cfg Config) (ports.AgentClient, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClient(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Metrics, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported agent provider: %s", cfg.Provider)
	}
}
