package domain

import "fmt"

// TranscriptEntry is one participant response (or planner note) collected
// during an orchestration-manager run.
type TranscriptEntry struct {
	Participant string `json:"participant"`
	Content     string `json:"content"`
	Round       int    `json:"round"`
	Failed      bool   `json:"failed,omitempty"`
}

// Transcript accumulates the shared conversation of an orchestration-manager
// run: the original task, the per-round participant responses, and facts
// retained across resets. It is owned by a single manager loop and is not
// safe for concurrent mutation.
type Transcript struct {
	Task    string            `json:"task"`
	Entries []TranscriptEntry `json:"entries"`
	Facts   []string          `json:"facts,omitempty"`
}

// NewTranscript starts a transcript for the given task.
func NewTranscript(task string) *Transcript {
	return &Transcript{Task: task}
}

// Append records a participant response.
func (t *Transcript) Append(entry TranscriptEntry) {
	t.Entries = append(t.Entries, entry)
}

// Reset clears the working entries for a fresh planning attempt, retaining
// each prior response as a fact so the planner does not start blind.
func (t *Transcript) Reset() {
	for _, e := range t.Entries {
		if e.Failed {
			continue
		}
		t.Facts = append(t.Facts, fmt.Sprintf("%s: %s", e.Participant, e.Content))
	}
	t.Entries = nil
}

// Assignment is one sub-task the planner dispatches to a participant.
type Assignment struct {
	Participant string `json:"participant"`
	Task        string `json:"task"`
}

// Directive is the planner's decision for one round: either declare
// completion with a final value, or dispatch sub-tasks to participants.
type Directive struct {
	Complete    bool         `json:"complete"`
	Final       any          `json:"final,omitempty"`
	Assignments []Assignment `json:"assignments,omitempty"`
}

// ManagerResult is the best-effort terminal value produced when the manager
// loop terminates on an exhausted budget rather than a planner decision.
type ManagerResult struct {
	Summary string            `json:"summary"`
	Partial bool              `json:"partial"`
	Reason  string            `json:"reason,omitempty"`
	Entries []TranscriptEntry `json:"entries,omitempty"`
}
