package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// RunStore keeps run records in memory, for tests and single-binary
// deployments. TTLs are honored lazily: expired records are dropped on read.
type RunStore struct {
	mu      sync.RWMutex
	records map[string]*domain.RunRecord
	expiry  map[string]time.Time
}

// NewRunStore creates an in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		records: make(map[string]*domain.RunRecord),
		expiry:  make(map[string]time.Time),
	}
}

func (s *RunStore) SaveRun(_ context.Context, record *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[record.RunID] = &clone
	return nil
}

func (s *RunStore) GetRun(_ context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(runID) {
		delete(s.records, runID)
		delete(s.expiry, runID)
	}
	record, ok := s.records[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	clone := *record
	return &clone, nil
}

func (s *RunStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, runID)
	delete(s.expiry, runID)
	return nil
}

func (s *RunStore) ListRuns(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runIDs := make([]string, 0, len(s.records))
	for runID := range s.records {
		if s.expired(runID) {
			continue
		}
		runIDs = append(runIDs, runID)
	}
	return runIDs, nil
}

func (s *RunStore) SetTTL(_ context.Context, runID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[runID]; !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	s.expiry[runID] = time.Now().Add(ttl)
	return nil
}

func (s *RunStore) expired(runID string) bool {
	deadline, ok := s.expiry[runID]
	return ok && time.Now().After(deadline)
}
