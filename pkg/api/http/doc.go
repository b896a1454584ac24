// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Proposal evaluation submission and management
//   - Run status and result queries
//   - Server-sent event streaming of run events
//   - Health checks
//   - Prometheus metrics
package http
