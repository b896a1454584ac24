package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/runs"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// WorkflowName identifies deliberations in run records and metrics.
const WorkflowName = "deliberation"

// Service submits deliberations as tracked runs.
type Service struct {
	manager *Manager
	runs    *runs.Service
	logger  *zap.Logger
}

// NewService wraps a manager with run lifecycle tracking.
func NewService(manager *Manager, lifecycle *runs.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{manager: manager, runs: lifecycle, logger: logger}
}

// Deliberate submits a task and returns the run id to follow.
func (s *Service) Deliberate(ctx context.Context, task string) (string, error) {
	if task == "" {
		return "", fmt.Errorf("empty task")
	}
	runID, err := s.runs.Submit(ctx, WorkflowName, func(runCtx context.Context, id string) (<-chan domain.Event, error) {
		return s.manager.RunWithID(runCtx, id, task)
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("deliberation submitted", zap.String("run_id", runID))
	return runID, nil
}

// DefaultParticipants builds the stock popup-shop advisory team: three
// agent-backed participants the planner can assign sub-tasks to.
func DefaultParticipants(client ports.AgentClient, logger *zap.Logger) map[string]*domain.Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	instructions := map[string]string{
		"market_analyst":     "You analyse popup retail markets: demand, foot traffic, competition, seasonality.",
		"operations_planner": "You plan popup shop operations: staffing, logistics, permits, build-out timelines.",
		"finance_reviewer":   "You review popup shop finances: budgets, margins, break-even, cash flow risk.",
	}
	participants := make(map[string]*domain.Executor, len(instructions))
	for name, system := range instructions {
		participants[name] = agentParticipant(name, system, client, logger)
	}
	return participants
}

func agentParticipant(name, system string, client ports.AgentClient, logger *zap.Logger) *domain.Executor {
	return domain.NewExecutor(name).
		OnMessage(domain.KindTask, func(ctx context.Context, turn *domain.Turn, msg domain.Message) error {
			assignment, ok := msg.Payload.(domain.Assignment)
			if !ok {
				return fmt.Errorf("expected assignment payload, got %T", msg.Payload)
			}
			res, err := client.Generate(ctx, ports.GenerateRequest{
				Instructions: system,
				Input:        assignment.Task,
			})
			if err != nil {
				logger.Warn("participant agent call failed",
					zap.String("participant", name),
					zap.Error(err))
				return fmt.Errorf("agent call for %s: %w", name, err)
			}
			turn.Yield(res.Text)
			return nil
		}).
		Yields()
}
