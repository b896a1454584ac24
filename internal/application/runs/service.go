package runs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// Topic is the bus topic every run event is mirrored to.
const Topic = "runs.events"

// StartFunc launches the underlying execution (a graph run or a
// deliberation) under the given context and run id, returning its event
// stream.
type StartFunc func(ctx context.Context, runID string) (<-chan domain.Event, error)

// Service owns the lifecycle of submitted runs: it assigns ids, persists run
// records, mirrors events onto the bus, and supports status queries,
// cancellation and graceful shutdown. The engine and the deliberation manager
// both plug in through StartFunc.
type Service struct {
	store      ports.RunStore
	bus        ports.EventBus
	metrics    ports.MetricsCollector
	logger     *zap.Logger
	runTimeout time.Duration
	recordTTL  time.Duration

	active sync.Map // map[string]*activeRun
	count  atomic.Int64
}

type activeRun struct {
	workflow  string
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

// NewService creates the run lifecycle service. runTimeout bounds each run
// (zero disables it); recordTTL bounds how long terminal records stay in the
// store (zero keeps them indefinitely).
func NewService(
	store ports.RunStore,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	runTimeout, recordTTL time.Duration,
) *Service {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
		runTimeout: runTimeout,
		recordTTL:  recordTTL,
	}
}

// Submit registers a new run and starts it. The run executes under a
// service-owned context so it survives the submitting request; callers follow
// progress through Status, the event bus, or the streaming APIs.
func (s *Service) Submit(ctx context.Context, workflow string, start StartFunc) (string, error) {
	runID := uuid.New().String()

	record := &domain.RunRecord{
		RunID:       runID,
		Workflow:    workflow,
		Status:      domain.RunStatusSubmitted,
		SubmittedAt: time.Now(),
	}
	if err := s.store.SaveRun(ctx, record); err != nil {
		return "", fmt.Errorf("saving run record: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if s.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), s.runTimeout)
	}

	events, err := start(runCtx, runID)
	if err != nil {
		cancel()
		record.Status = domain.RunStatusFailed
		record.Error = err.Error()
		now := time.Now()
		record.CompletedAt = &now
		if serr := s.store.SaveRun(ctx, record); serr != nil {
			s.logger.Error("failed to save rejected run",
				zap.String("run_id", runID),
				zap.Error(serr))
		}
		return "", fmt.Errorf("starting run: %w", err)
	}

	ar := &activeRun{workflow: workflow, cancel: cancel, done: make(chan struct{})}
	s.active.Store(runID, ar)
	s.metrics.SetActiveRuns(int(s.count.Add(1)))
	s.metrics.RecordRunSubmitted(workflow)

	record.Status = domain.RunStatusRunning
	if err := s.store.SaveRun(ctx, record); err != nil {
		s.logger.Warn("failed to mark run running",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	s.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("workflow", workflow))

	go s.consume(runCtx, ar, record, events)
	return runID, nil
}

// consume drains one run's event stream, mirroring each event onto the bus
// and folding the terminal event into the stored record.
func (s *Service) consume(ctx context.Context, ar *activeRun, record *domain.RunRecord, events <-chan domain.Event) {
	defer func() {
		ar.cancel()
		s.active.Delete(record.RunID)
		s.metrics.SetActiveRuns(int(s.count.Add(-1)))
		close(ar.done)
	}()

	sawTerminal := false
	for ev := range events {
		if s.bus != nil {
			if err := s.bus.Publish(context.WithoutCancel(ctx), Topic, ev); err != nil {
				s.logger.Warn("failed to publish run event",
					zap.String("run_id", record.RunID),
					zap.String("event_type", string(ev.Type)),
					zap.Error(err))
			}
		}
		if ev.Terminal() {
			sawTerminal = true
			s.complete(record, ar, ev)
		}
	}
	if !sawTerminal {
		s.logger.Error("event stream closed without terminal event",
			zap.String("run_id", record.RunID))
		now := time.Now()
		record.Status = domain.RunStatusFailed
		record.Error = "event stream closed without terminal event"
		record.CompletedAt = &now
		s.saveTerminal(record)
	}
}

func (s *Service) complete(record *domain.RunRecord, ar *activeRun, ev domain.Event) {
	now := time.Now()
	record.CompletedAt = &now
	switch {
	case ev.Type == domain.EventFinalResult:
		record.Status = domain.RunStatusCompleted
		record.Result = ev.Value
		record.ResultFrom = ev.ExecutorID
	case ar.cancelled.Load():
		record.Status = domain.RunStatusCancelled
		record.Error = ev.Error
	default:
		record.Status = domain.RunStatusFailed
		record.Error = ev.Error
	}
	s.saveTerminal(record)
	s.metrics.RecordRunCompleted(record.Workflow, string(record.Status), now.Sub(record.SubmittedAt))
	s.logger.Info("run finished",
		zap.String("run_id", record.RunID),
		zap.String("workflow", record.Workflow),
		zap.String("status", string(record.Status)),
		zap.Duration("duration", now.Sub(record.SubmittedAt)))
}

func (s *Service) saveTerminal(record *domain.RunRecord) {
	ctx := context.Background()
	if err := s.store.SaveRun(ctx, record); err != nil {
		s.logger.Error("failed to save terminal run record",
			zap.String("run_id", record.RunID),
			zap.Error(err))
		return
	}
	if s.recordTTL > 0 {
		if err := s.store.SetTTL(ctx, record.RunID, s.recordTTL); err != nil {
			s.logger.Warn("failed to set run record ttl",
				zap.String("run_id", record.RunID),
				zap.Error(err))
		}
	}
}

// Status returns the stored record for a run.
func (s *Service) Status(ctx context.Context, runID string) (*domain.RunRecord, error) {
	record, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return record, nil
}

// Result returns the terminal value of a completed run. It fails while the
// run is still in flight.
func (s *Service) Result(ctx context.Context, runID string) (any, error) {
	record, err := s.Status(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch record.Status {
	case domain.RunStatusCompleted:
		return record.Result, nil
	case domain.RunStatusFailed, domain.RunStatusCancelled:
		return nil, fmt.Errorf("run %s ended %s: %s", runID, record.Status, record.Error)
	default:
		return nil, fmt.Errorf("run %s still %s", runID, record.Status)
	}
}

// Cancel aborts an in-flight run. The engine drains its branches and emits a
// terminal failure event, which consume folds into a cancelled record.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	val, ok := s.active.Load(runID)
	if !ok {
		record, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		return fmt.Errorf("run %s already in terminal state %s", runID, record.Status)
	}
	ar := val.(*activeRun)
	ar.cancelled.Store(true)
	ar.cancel()
	s.logger.Info("run cancelled", zap.String("run_id", runID))
	return nil
}

// List returns the ids of all stored runs.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.ListRuns(ctx)
}

// Shutdown cancels every active run and waits for their streams to drain or
// the context to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down run service")

	var pending []chan struct{}
	s.active.Range(func(_, value any) bool {
		ar := value.(*activeRun)
		ar.cancelled.Store(true)
		ar.cancel()
		pending = append(pending, ar.done)
		return true
	})
	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown interrupted with runs still draining: %w", ctx.Err())
		}
	}
	s.logger.Info("run service shut down", zap.Int("drained", len(pending)))
	return nil
}
