// Package runs tracks the lifecycle of submitted workflow runs: id
// assignment, record persistence, event mirroring onto the bus, status
// queries, cancellation and graceful shutdown.
package runs
