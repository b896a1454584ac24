package ports

import (
	"context"
	"time"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// RunStore persists run records as simple keyed values with a TTL. There is
// no transactional coordination with the engine; the store is a best-effort
// observation surface for APIs and operators.
type RunStore interface {
	SaveRun(ctx context.Context, record *domain.RunRecord) error
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)
	DeleteRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]string, error)
	SetTTL(ctx context.Context, runID string, ttl time.Duration) error
}
