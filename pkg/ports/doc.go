// Package ports declares the interfaces through which the orchestration core
// consumes external collaborators: event delivery, run persistence, language
// model backends, tool providers, planning capabilities and metrics.
//
// Implementations live under pkg/adapters.
package ports
