package ports

import (
	"context"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// ToolSpec describes a tool the model backend may call.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// GenerateRequest is one call to a language model backend.
type GenerateRequest struct {
	Instructions   string         `json:"instructions,omitempty"`
	Input          string         `json:"input"`
	Tools          []ToolSpec     `json:"tools,omitempty"`
	ResponseSchema map[string]any `json:"response_schema,omitempty"`
}

// GenerateResult carries the model's answer. Structured is populated when the
// request declared a response schema and the model produced parseable JSON.
type GenerateResult struct {
	Text       string         `json:"text"`
	Structured map[string]any `json:"structured,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
}

// AgentClient is the opaque language-model capability consumed by executors.
// Calls may fail or time out; executors decide whether to surface the failure
// or convert it into a routable error message.
type AgentClient interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// ToolClient invokes remote procedure endpoints on behalf of the model
// backend. The orchestrator never calls tools directly.
type ToolClient interface {
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// Planner is the planning capability driving an orchestration-manager loop.
// Plan decides what to dispatch next (or declares completion); AssessProgress
// judges whether the latest round moved the task forward.
type Planner interface {
	Plan(ctx context.Context, transcript *domain.Transcript) (*domain.Directive, error)
	AssessProgress(ctx context.Context, transcript *domain.Transcript) (bool, error)
}
