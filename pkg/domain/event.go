package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event emitted during a run.
type EventType string

const (
	// EventDispatched records a message leaving an edge towards an executor.
	EventDispatched EventType = "dispatched"
	// EventExecutorStarted records the start of an executor invocation.
	EventExecutorStarted EventType = "executor_started"
	// EventExecutorFinished records the end of an executor invocation.
	EventExecutorFinished EventType = "executor_finished"
	// EventRoundBoundary marks the end of an orchestration-manager round.
	EventRoundBoundary EventType = "round_boundary"
	// EventFinalResult carries the run's terminal result. Emitted exactly
	// once per successful run, as the last event before the stream closes.
	EventFinalResult EventType = "final_result"
	// EventFailure carries the failing executor id and cause. Emitted exactly
	// once per failed run, as the last event before the stream closes.
	EventFailure EventType = "failure"
)

// Event is one entry in a run's lifecycle stream. Seq increases monotonically
// within a run and defines the observed order.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	Seq        uint64    `json:"seq"`
	ExecutorID string    `json:"executor_id,omitempty"`
	EdgeKind   EdgeKind  `json:"edge_kind,omitempty"`
	Round      int       `json:"round,omitempty"`
	StallCount int       `json:"stall_count,omitempty"`
	ResetCount int       `json:"reset_count,omitempty"`
	Value      any       `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent creates an event for the given run. Seq is assigned by the
// emitting component.
func NewEvent(runID string, typ EventType) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      typ,
		RunID:     runID,
		Timestamp: time.Now(),
	}
}

// Terminal reports whether this event ends a run's stream.
func (e Event) Terminal() bool {
	return e.Type == EventFinalResult || e.Type == EventFailure
}

// Checkpoint reports whether a buffered sink should flush after this event.
// Round boundaries and terminal events are the well-defined checkpoints.
func (e Event) Checkpoint() bool {
	return e.Type == EventRoundBoundary || e.Terminal()
}
