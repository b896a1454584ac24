package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

type stubClient struct {
	requests []ports.GenerateRequest
	result   *ports.GenerateResult
	err      error
}

func (c *stubClient) Generate(_ context.Context, req ports.GenerateRequest) (*ports.GenerateResult, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func TestPlanDecodesAssignments(t *testing.T) {
	client := &stubClient{result: &ports.GenerateResult{
		Structured: map[string]any{
			"complete": false,
			"assignments": []any{
				map[string]any{"participant": "market_analyst", "task": "size the market"},
				map[string]any{"participant": "finance_reviewer", "task": "check margins"},
			},
		},
	}}
	p := NewAgentPlanner(client, []string{"market_analyst", "finance_reviewer"}, nil)

	directive, err := p.Plan(context.Background(), domain.NewTranscript("open a popup in Lisbon"))
	require.NoError(t, err)
	assert.False(t, directive.Complete)
	require.Len(t, directive.Assignments, 2)
	assert.Equal(t, "market_analyst", directive.Assignments[0].Participant)
	assert.Equal(t, "size the market", directive.Assignments[0].Task)
}

func TestPlanDecodesCompletion(t *testing.T) {
	client := &stubClient{result: &ports.GenerateResult{
		Structured: map[string]any{"complete": true, "final": "open in Lisbon in June"},
	}}
	p := NewAgentPlanner(client, []string{"market_analyst"}, nil)

	directive, err := p.Plan(context.Background(), domain.NewTranscript("task"))
	require.NoError(t, err)
	assert.True(t, directive.Complete)
	assert.Equal(t, "open in Lisbon in June", directive.Final)
}

func TestPlanErrors(t *testing.T) {
	p := NewAgentPlanner(&stubClient{err: errors.New("overloaded")}, []string{"a"}, nil)
	_, err := p.Plan(context.Background(), domain.NewTranscript("task"))
	require.Error(t, err)

	p = NewAgentPlanner(&stubClient{result: &ports.GenerateResult{Text: "plain text"}}, []string{"a"}, nil)
	_, err = p.Plan(context.Background(), domain.NewTranscript("task"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "structured")
}

func TestPlanPromptNamesParticipants(t *testing.T) {
	client := &stubClient{result: &ports.GenerateResult{
		Structured: map[string]any{"complete": true},
	}}
	p := NewAgentPlanner(client, []string{"market_analyst", "operations_planner"}, nil)

	_, err := p.Plan(context.Background(), domain.NewTranscript("task"))
	require.NoError(t, err)
	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].Instructions, "market_analyst, operations_planner")
}

func TestAssessProgress(t *testing.T) {
	client := &stubClient{result: &ports.GenerateResult{
		Structured: map[string]any{"progress": true},
	}}
	p := NewAgentPlanner(client, []string{"a"}, nil)

	progress, err := p.AssessProgress(context.Background(), domain.NewTranscript("task"))
	require.NoError(t, err)
	assert.True(t, progress)

	client.result = &ports.GenerateResult{Structured: map[string]any{"progress": false}}
	progress, err = p.AssessProgress(context.Background(), domain.NewTranscript("task"))
	require.NoError(t, err)
	assert.False(t, progress)
}

func TestRenderTranscript(t *testing.T) {
	tr := domain.NewTranscript("open a popup shop")
	tr.Facts = []string{"analyst: Lisbon has high foot traffic"}
	tr.Append(domain.TranscriptEntry{Participant: "analyst", Round: 1, Content: "looked at rents"})
	tr.Append(domain.TranscriptEntry{Participant: "reviewer", Round: 1, Content: "timed out", Failed: true})

	text := renderTranscript(tr)
	assert.Contains(t, text, "Task: open a popup shop")
	assert.Contains(t, text, "Lisbon has high foot traffic")
	assert.Contains(t, text, "[round 1] analyst: looked at rents")
	assert.Contains(t, text, "reviewer (failed): timed out")
}

func TestNewClientFactory(t *testing.T) {
	client, err := NewClient(Config{Provider: "anthropic", APIKey: "k", Model: "m", MaxTokens: 1024})
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClient(Config{Provider: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}
