// Package engine implements the workflow graph and its runner.
//
// A Graph is built once through the Builder, validated exhaustively, and then
// shared read-only across any number of concurrent runs. The Runner walks the
// graph per run: simple edges deliver in production order, fan-out branches
// execute concurrently, fan-in barriers collect one output per declared
// predecessor before invoking the target exactly once, and conditional edges
// route to the first matching case or the mandatory default.
//
// A run terminates with exactly one terminal event: a final result after the
// first yield, or a failure carrying the failing executor and cause.
package engine
