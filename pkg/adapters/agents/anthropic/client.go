// Package anthropic implements the AgentClient port on the official
// Anthropic SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

const defaultMaxTokens = 1024

// Client calls the Anthropic Messages API.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	metrics   ports.MetricsCollector
	logger    *zap.Logger
}

// NewClient creates an Anthropic-backed agent client.
func NewClient(apiKey, model string, maxTokens int64, metrics ports.MetricsCollector, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Generate sends one message exchange. When the request declares a response
// schema the model is instructed to answer with matching JSON, which is
// parsed into the Structured field; a malformed answer degrades to Text only.
func (c *Client) Generate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResult, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	}

	system := req.Instructions
	if req.ResponseSchema != nil {
		schema, err := json.Marshal(req.ResponseSchema)
		if err != nil {
			return nil, fmt.Errorf("marshaling response schema: %w", err)
		}
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with a single JSON object matching this schema, and nothing else:\n" + string(schema)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
				},
			},
		})
	}

	begin := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	duration := time.Since(begin)
	if err != nil {
		c.metrics.RecordAgentCall(c.model, "error", duration)
		c.logger.Warn("anthropic call failed",
			zap.String("model", c.model),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, fmt.Errorf("anthropic message: %w", err)
	}
	c.metrics.RecordAgentCall(c.model, "ok", duration)
	c.metrics.RecordAgentTokens(c.model, "input", int(msg.Usage.InputTokens))
	c.metrics.RecordAgentTokens(c.model, "output", int(msg.Usage.OutputTokens))

	result := &ports.GenerateResult{}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Text += variant.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal(variant.Input, &args); err != nil {
				c.logger.Warn("unparseable tool call arguments",
					zap.String("tool", variant.Name),
					zap.Error(err))
				continue
			}
			result.ToolCalls = append(result.ToolCalls, ports.ToolCall{Name: variant.Name, Args: args})
		}
	}

	if req.ResponseSchema != nil {
		result.Structured = parseStructured(result.Text)
		if result.Structured == nil {
			c.logger.Warn("model did not produce parseable structured output",
				zap.String("model", c.model))
		}
	}
	return result, nil
}

// parseStructured extracts a JSON object from the model's text, tolerating
// markdown fences and surrounding prose.
func parseStructured(text string) map[string]any {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil
	}
	return out
}
