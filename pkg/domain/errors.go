package domain

import (
	"errors"
	"fmt"
	"strings"
)

// IssueKind classifies one graph validation violation.
type IssueKind string

const (
	IssueNoStartExecutor     IssueKind = "no_start_executor"
	IssueUnreachableExecutor IssueKind = "unreachable_executor"
	IssueDuplicateExecutorID IssueKind = "duplicate_executor_id"
	IssueEmptyFanInSet       IssueKind = "empty_fan_in_set"
	IssueMissingDefaultCase  IssueKind = "missing_default_case"
	IssueUnknownExecutor     IssueKind = "unknown_executor"
	IssueHandlerContract     IssueKind = "handler_contract"
)

// Issue is a single validation violation.
type Issue struct {
	Kind       IssueKind `json:"kind"`
	ExecutorID string    `json:"executor_id,omitempty"`
	Detail     string    `json:"detail"`
}

func (i Issue) String() string {
	if i.ExecutorID == "" {
		return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", i.Kind, i.ExecutorID, i.Detail)
}

// ValidationError reports every invariant violated by a graph under
// construction. Validation is exhaustive: Build collects all issues instead
// of stopping at the first so tests can assert on the complete set.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("graph validation failed: %s", strings.Join(parts, "; "))
}

// Has reports whether the error contains an issue of the given kind.
func (e *ValidationError) Has(kind IssueKind) bool {
	for _, issue := range e.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

// HandlerError is a runtime, executor-local failure. Unless the executor
// converted the upstream failure into a KindError message, a HandlerError
// aborts the run.
type HandlerError struct {
	ExecutorID string
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("executor %s: %v", e.ExecutorID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// BarrierTimeoutError reports a fan-in barrier whose predecessors never all
// completed before the run ended.
type BarrierTimeoutError struct {
	Target  string
	Missing []string
}

func (e *BarrierTimeoutError) Error() string {
	return fmt.Sprintf("fan-in barrier for %s never filled, missing: %s",
		e.Target, strings.Join(e.Missing, ", "))
}

// StallExceededError terminates an orchestration-manager loop whose stall
// budget and resets are exhausted. It is terminal but not a hard failure:
// the manager still produces a best-effort final result when any partial
// progress exists.
type StallExceededError struct {
	Stalls int
	Resets int
}

func (e *StallExceededError) Error() string {
	return fmt.Sprintf("no forward progress after %d stalled rounds and %d resets", e.Stalls, e.Resets)
}

// RoundExceededError terminates an orchestration-manager loop that reached
// its round budget without a final answer.
type RoundExceededError struct {
	Rounds int
}

func (e *RoundExceededError) Error() string {
	return fmt.Sprintf("round budget exhausted after %d rounds", e.Rounds)
}

// ErrNoTerminalResult is the failure cause of a run that drained all in-flight
// work without any executor yielding a result.
var ErrNoTerminalResult = errors.New("workflow completed without a terminal result")
