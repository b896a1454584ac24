package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

var planSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"complete": map[string]any{"type": "boolean"},
		"final":    map[string]any{"type": "string"},
		"assignments": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"participant": map[string]any{"type": "string"},
					"task":        map[string]any{"type": "string"},
				},
				"required": []string{"participant", "task"},
			},
		},
	},
	"required": []string{"complete"},
}

var progressSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"progress": map[string]any{"type": "boolean"},
	},
	"required": []string{"progress"},
}

// AgentPlanner drives the deliberation loop with a model backend: the model
// reads the transcript and either assigns sub-tasks to participants or
// declares a final answer.
type AgentPlanner struct {
	client       ports.AgentClient
	participants []string
	logger       *zap.Logger
}

// NewAgentPlanner creates a planner over the given participant names.
func NewAgentPlanner(client ports.AgentClient, participants []string, logger *zap.Logger) *AgentPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentPlanner{client: client, participants: participants, logger: logger}
}

func (p *AgentPlanner) Plan(ctx context.Context, transcript *domain.Transcript) (*domain.Directive, error) {
	res, err := p.client.Generate(ctx, ports.GenerateRequest{
		Instructions: fmt.Sprintf(
			"You coordinate a team working on a task. Available participants: %s. "+
				"Either declare the task complete with a final answer, or assign the next sub-tasks.",
			strings.Join(p.participants, ", ")),
		Input:          renderTranscript(transcript),
		ResponseSchema: planSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("planning call: %w", err)
	}
	if res.Structured == nil {
		return nil, fmt.Errorf("planner produced no structured decision")
	}

	directive := &domain.Directive{}
	raw, err := json.Marshal(res.Structured)
	if err != nil {
		return nil, fmt.Errorf("re-encoding plan: %w", err)
	}
	var decoded struct {
		Complete    bool                `json:"complete"`
		Final       string              `json:"final"`
		Assignments []domain.Assignment `json:"assignments"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	directive.Complete = decoded.Complete
	if decoded.Final != "" {
		directive.Final = decoded.Final
	}
	directive.Assignments = decoded.Assignments
	return directive, nil
}

func (p *AgentPlanner) AssessProgress(ctx context.Context, transcript *domain.Transcript) (bool, error) {
	res, err := p.client.Generate(ctx, ports.GenerateRequest{
		Instructions: "You judge whether the latest round of responses moved the task forward. " +
			"Answer progress=false when the responses repeat earlier content or add nothing actionable.",
		Input:          renderTranscript(transcript),
		ResponseSchema: progressSchema,
	})
	if err != nil {
		return false, fmt.Errorf("progress call: %w", err)
	}
	if res.Structured == nil {
		return false, fmt.Errorf("progress assessment produced no structured decision")
	}
	progress, _ := res.Structured["progress"].(bool)
	return progress, nil
}

func renderTranscript(t *domain.Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", t.Task)
	if len(t.Facts) > 0 {
		b.WriteString("\nEstablished facts:\n")
		for _, fact := range t.Facts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
	}
	if len(t.Entries) > 0 {
		b.WriteString("\nResponses so far:\n")
		for _, e := range t.Entries {
			status := ""
			if e.Failed {
				status = " (failed)"
			}
			fmt.Fprintf(&b, "[round %d] %s%s: %s\n", e.Round, e.Participant, status, e.Content)
		}
	}
	return b.String()
}
