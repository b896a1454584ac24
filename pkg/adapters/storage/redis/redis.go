package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

const runKeyPrefix = "popupshop:runs:"

// RunStore persists run records in Redis as JSON values with a default TTL.
type RunStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunStore creates a Redis-backed run store. ttl applies to every saved
// record; zero keeps records until explicitly expired via SetTTL.
func NewRunStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunStore{client: client, logger: logger, ttl: ttl}
}

func (s *RunStore) SaveRun(ctx context.Context, record *domain.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling run record: %w", err)
	}
	if err := s.client.Set(ctx, runKey(record.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving run record: %w", err)
	}
	s.logger.Debug("run record saved",
		zap.String("run_id", record.RunID),
		zap.String("status", string(record.Status)))
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("loading run record: %w", err)
	}
	var record domain.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling run record: %w", err)
	}
	return &record, nil
}

func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, runKey(runID)).Err(); err != nil {
		return fmt.Errorf("deleting run record: %w", err)
	}
	return nil
}

func (s *RunStore) ListRuns(ctx context.Context) ([]string, error) {
	var cursor uint64
	var runIDs []string
	pattern := runKeyPrefix + "*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning run keys: %w", err)
		}
		for _, key := range batch {
			if len(key) > len(runKeyPrefix) {
				runIDs = append(runIDs, key[len(runKeyPrefix):])
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return runIDs, nil
}

func (s *RunStore) SetTTL(ctx context.Context, runID string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, runKey(runID), ttl).Err(); err != nil {
		return fmt.Errorf("setting run record ttl: %w", err)
	}
	return nil
}

func runKey(runID string) string {
	return runKeyPrefix + runID
}
