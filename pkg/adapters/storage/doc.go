// Package storage provides run record store implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: in-process, for tests and single-binary deployments
package storage
