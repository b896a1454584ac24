// Package events provides event sinks and bus implementations.
//
// The package root holds the sink adapters (buffered checkpoint batching, a
// streaming bus sink, and a function adapter); the subpackages implement the
// bus itself:
//   - redis: Redis Streams with consumer groups
//   - memory: in-process, for tests and single-binary deployments
package events
