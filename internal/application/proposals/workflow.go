package proposals

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/engine"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// Executor ids of the evaluation workflow.
const (
	ExecIntake      = "intake"
	ExecCompliance  = "compliance"
	ExecCommercial  = "commercial"
	ExecProcurement = "procurement"
	ExecAggregator  = "aggregator"
	ExecNegotiator  = "negotiator"
	ExecReview      = "review_and_dismiss"
)

var expertInstructions = map[string]string{
	ExecCompliance:  "You are a compliance expert for popup retail. Judge whether the proposal meets permitting, safety and insurance requirements.",
	ExecCommercial:  "You are a commercial expert for popup retail. Judge whether the proposal's pricing and terms are commercially attractive.",
	ExecProcurement: "You are a procurement expert for popup retail. Judge whether the vendor can deliver on time, at quality, at the stated price.",
}

var findingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"favorable": map[string]any{"type": "boolean"},
		"notes":     map[string]any{"type": "string"},
	},
	"required": []string{"favorable", "notes"},
}

// report pairs an expert finding with the proposal it judged, so the
// aggregator sees both sides of the barrier fill.
type report struct {
	Proposal Proposal
	Finding  ExpertFinding
}

// NewWorkflow assembles the proposal evaluation graph:
// intake fans out to three expert executors, a barrier aggregates their
// findings into an assessment, and a conditional edge routes competitive
// proposals to the negotiator and everything else to review-and-dismiss.
func NewWorkflow(agents ports.AgentClient, logger *zap.Logger) (*engine.Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	intake := domain.NewExecutor(ExecIntake).
		Emits(KindProposal).
		OnMessage(KindProposal, func(_ context.Context, turn *domain.Turn, msg domain.Message) error {
			p, ok := msg.Payload.(Proposal)
			if !ok {
				return fmt.Errorf("expected proposal payload, got %T", msg.Payload)
			}
			if p.Vendor == "" {
				return fmt.Errorf("proposal has no vendor")
			}
			turn.Send(KindProposal, p)
			return nil
		})

	experts := make([]*domain.Executor, 0, len(expertInstructions))
	for _, id := range []string{ExecCompliance, ExecCommercial, ExecProcurement} {
		experts = append(experts, expertExecutor(id, agents, logger))
	}

	aggregator := domain.NewExecutor(ExecAggregator).
		Emits(KindAssessment).
		OnMessage(domain.KindAggregate, func(_ context.Context, turn *domain.Turn, msg domain.Message) error {
			batch, err := domain.Collected(msg)
			if err != nil {
				return err
			}
			assessment := Assessment{IsCompetitive: true}
			for _, m := range batch {
				r, ok := m.Payload.(report)
				if !ok {
					return fmt.Errorf("expected expert report from %s, got %T", m.Source, m.Payload)
				}
				assessment.Proposal = r.Proposal
				assessment.Findings = append(assessment.Findings, r.Finding)
				if !r.Finding.Favorable {
					assessment.IsCompetitive = false
				}
			}
			assessment.Rationale = rationale(assessment)
			turn.Send(KindAssessment, assessment)
			return nil
		})

	negotiator := domain.NewExecutor(ExecNegotiator).
		Yields().
		OnMessage(KindAssessment, func(ctx context.Context, turn *domain.Turn, msg domain.Message) error {
			a, ok := msg.Payload.(Assessment)
			if !ok {
				return fmt.Errorf("expected assessment payload, got %T", msg.Payload)
			}
			summary := negotiate(ctx, agents, logger, a)
			turn.Yield(Outcome{
				Vendor:     a.Proposal.Vendor,
				Negotiated: true,
				Summary:    summary,
				Assessment: a,
			})
			return nil
		})

	review := domain.NewExecutor(ExecReview).
		Yields().
		OnMessage(KindAssessment, func(_ context.Context, turn *domain.Turn, msg domain.Message) error {
			a, ok := msg.Payload.(Assessment)
			if !ok {
				return fmt.Errorf("expected assessment payload, got %T", msg.Payload)
			}
			turn.Yield(Outcome{
				Vendor:     a.Proposal.Vendor,
				Negotiated: false,
				Summary:    fmt.Sprintf("proposal from %s dismissed: %s", a.Proposal.Vendor, a.Rationale),
				Assessment: a,
			})
			return nil
		})

	b := engine.NewBuilder()
	b.SetStart(intake)
	b.AddFanOutEdges(intake, experts...)
	b.AddFanInEdges(experts, aggregator)
	b.AddConditionalEdges(aggregator, []engine.ConditionalCase{
		{When: isCompetitive, To: negotiator},
	}, review)
	return b.Build()
}

func isCompetitive(msg domain.Message) bool {
	a, ok := msg.Payload.(Assessment)
	return ok && a.IsCompetitive
}

// expertExecutor builds one agent-backed expert. Agent failures become
// unfavorable findings rather than run aborts, so a flaky backend dismisses
// the proposal instead of failing the evaluation.
func expertExecutor(id string, agents ports.AgentClient, logger *zap.Logger) *domain.Executor {
	return domain.NewExecutor(id).
		Emits(KindFinding).
		OnMessage(KindProposal, func(ctx context.Context, turn *domain.Turn, msg domain.Message) error {
			p, ok := msg.Payload.(Proposal)
			if !ok {
				return fmt.Errorf("expected proposal payload, got %T", msg.Payload)
			}
			finding := judge(ctx, id, agents, logger, p)
			turn.Send(KindFinding, report{Proposal: p, Finding: finding})
			return nil
		})
}

func judge(ctx context.Context, expert string, agents ports.AgentClient, logger *zap.Logger, p Proposal) ExpertFinding {
	res, err := agents.Generate(ctx, ports.GenerateRequest{
		Instructions: expertInstructions[expert],
		Input: fmt.Sprintf("Vendor: %s\nPrice: %.2f EUR\nLead time: %d days\nProposal: %s",
			p.Vendor, p.PriceEUR, p.LeadTimeDays, p.Summary),
		ResponseSchema: findingSchema,
	})
	if err != nil {
		logger.Warn("expert agent call failed",
			zap.String("expert", expert),
			zap.String("vendor", p.Vendor),
			zap.Error(err))
		return ExpertFinding{
			Expert:      expert,
			Favorable:   false,
			Unavailable: true,
			Notes:       fmt.Sprintf("expert unavailable: %v", err),
		}
	}
	finding := ExpertFinding{Expert: expert, Notes: res.Text}
	if res.Structured != nil {
		if fav, ok := res.Structured["favorable"].(bool); ok {
			finding.Favorable = fav
		}
		if notes, ok := res.Structured["notes"].(string); ok && notes != "" {
			finding.Notes = notes
		}
	}
	return finding
}

func negotiate(ctx context.Context, agents ports.AgentClient, logger *zap.Logger, a Assessment) string {
	notes := make([]string, 0, len(a.Findings))
	for _, f := range a.Findings {
		notes = append(notes, fmt.Sprintf("%s: %s", f.Expert, f.Notes))
	}
	res, err := agents.Generate(ctx, ports.GenerateRequest{
		Instructions: "You negotiate popup shop supply contracts. Draft a short negotiation summary: target price, key asks, walk-away point.",
		Input: fmt.Sprintf("Vendor: %s\nOffered price: %.2f EUR\nExpert findings:\n%s",
			a.Proposal.Vendor, a.Proposal.PriceEUR, strings.Join(notes, "\n")),
	})
	if err != nil {
		logger.Warn("negotiation agent call failed",
			zap.String("vendor", a.Proposal.Vendor),
			zap.Error(err))
		return fmt.Sprintf("negotiation with %s recommended; summary unavailable: %v", a.Proposal.Vendor, err)
	}
	return res.Text
}

func rationale(a Assessment) string {
	var unfavorable []string
	for _, f := range a.Findings {
		if !f.Favorable {
			unfavorable = append(unfavorable, f.Expert)
		}
	}
	if len(unfavorable) == 0 {
		return "all experts judged the proposal favorable"
	}
	return fmt.Sprintf("unfavorable findings from %s", strings.Join(unfavorable, ", "))
}
