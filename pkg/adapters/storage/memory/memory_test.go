package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

func TestRunStoreRoundTrip(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	record := &domain.RunRecord{
		RunID:       "run-1",
		Workflow:    "proposal_evaluation",
		Status:      domain.RunStatusRunning,
		SubmittedAt: time.Now(),
	}
	require.NoError(t, store.SaveRun(ctx, record))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)

	// The store hands out clones; mutating them does not leak back.
	got.Status = domain.RunStatusCompleted
	again, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, again.Status)
}

func TestRunStoreNotFound(t *testing.T) {
	store := NewRunStore()
	_, err := store.GetRun(context.Background(), "missing")
	require.Error(t, err)
}

func TestRunStoreDeleteAndList(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, &domain.RunRecord{RunID: "run-1"}))
	require.NoError(t, store.SaveRun(ctx, &domain.RunRecord{RunID: "run-2"}))

	ids, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-1", "run-2"}, ids)

	require.NoError(t, store.DeleteRun(ctx, "run-1"))
	ids, err = store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-2"}, ids)
}

func TestRunStoreTTL(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, &domain.RunRecord{RunID: "run-1"}))
	require.NoError(t, store.SetTTL(ctx, "run-1", 10*time.Millisecond))

	time.Sleep(30 * time.Millisecond)
	_, err := store.GetRun(ctx, "run-1")
	require.Error(t, err)

	ids, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunStoreSetTTLUnknownRun(t *testing.T) {
	store := NewRunStore()
	err := store.SetTTL(context.Background(), "missing", time.Minute)
	require.Error(t, err)
}
