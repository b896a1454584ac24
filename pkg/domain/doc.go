// Package domain defines the core types of the workflow orchestration engine:
// messages, executors, edges, events, run records and the error taxonomy.
//
// Types in this package are transport-agnostic. The execution semantics live
// in internal/application/engine; adapters under pkg/adapters provide the
// concrete event, storage and agent backends.
package domain
