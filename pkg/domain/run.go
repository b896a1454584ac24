package domain

import "time"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusSubmitted RunStatus = "submitted"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// RunRecord is the persisted view of one workflow run. It is stored as JSON
// in the run store with a TTL; the engine itself never reads it back during
// execution.
type RunRecord struct {
	RunID       string     `json:"run_id"`
	Workflow    string     `json:"workflow"`
	Status      RunStatus  `json:"status"`
	Result      any        `json:"result,omitempty"`
	ResultFrom  string     `json:"result_from,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
