// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/evaluations/:id/ws to receive the run's
// lifecycle events as they happen.
package websocket
