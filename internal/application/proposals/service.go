package proposals

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/engine"
	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/runs"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// WorkflowName identifies proposal evaluations in run records and metrics.
const WorkflowName = "proposal_evaluation"

// Service submits proposal evaluations as workflow runs. The graph is built
// once and shared read-only across concurrent evaluations.
type Service struct {
	graph  *engine.Graph
	runner *engine.Runner
	runs   *runs.Service
	logger *zap.Logger
}

// NewService builds the evaluation workflow against the given agent backend.
func NewService(agents ports.AgentClient, runner *engine.Runner, lifecycle *runs.Service, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	graph, err := NewWorkflow(agents, logger)
	if err != nil {
		return nil, fmt.Errorf("building evaluation workflow: %w", err)
	}
	return &Service{graph: graph, runner: runner, runs: lifecycle, logger: logger}, nil
}

// Evaluate submits one proposal and returns the run id to follow.
func (s *Service) Evaluate(ctx context.Context, p Proposal) (string, error) {
	if p.Vendor == "" {
		return "", fmt.Errorf("proposal has no vendor")
	}
	runID, err := s.runs.Submit(ctx, WorkflowName, func(runCtx context.Context, id string) (<-chan domain.Event, error) {
		return s.runner.RunWithID(runCtx, id, s.graph, domain.NewMessage(KindProposal, p))
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("proposal evaluation submitted",
		zap.String("run_id", runID),
		zap.String("vendor", p.Vendor))
	return runID, nil
}
