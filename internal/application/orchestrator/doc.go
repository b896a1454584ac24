// Package orchestrator implements the round-bounded deliberation loop.
//
// A Manager coordinates a flat set of participant executors through a
// planner across bounded rounds:
//   - Planning: the planner reads the transcript and either declares a final
//     result or assigns sub-tasks to participants.
//   - Dispatching: assigned participants run concurrently; their responses
//     are appended to the shared transcript.
//   - Evaluating: the planner judges whether the round made progress; barren
//     rounds increment a stall counter that can force a transcript reset.
//
// The loop always terminates within its configured round, stall and reset
// budgets, emitting exactly one terminal event.
package orchestrator
