package orchestrator

import (
	"fmt"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// validate checks the deliberation contract up front: every participant must
// handle task assignments, and the loop bounds must be non-negative.
func validate(planner ports.Planner, participants map[string]*domain.Executor, cfg Config) error {
	if planner == nil {
		return fmt.Errorf("nil planner")
	}
	if len(participants) == 0 {
		return fmt.Errorf("deliberation needs at least one participant")
	}
	for name, exec := range participants {
		if exec == nil {
			return fmt.Errorf("participant %q is nil", name)
		}
		if !exec.Accepts(domain.KindTask) {
			return fmt.Errorf("participant %q has no handler for %q messages", name, domain.KindTask)
		}
	}
	if cfg.MaxRounds < 0 || cfg.MaxStalls < 0 || cfg.MaxResets < 0 {
		return fmt.Errorf("negative loop bound: rounds=%d stalls=%d resets=%d",
			cfg.MaxRounds, cfg.MaxStalls, cfg.MaxResets)
	}
	if cfg.RoundTimeout < 0 {
		return fmt.Errorf("negative round timeout %s", cfg.RoundTimeout)
	}
	return nil
}
