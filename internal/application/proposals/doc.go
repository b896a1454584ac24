// Package proposals implements the popup-shop proposal evaluation workflow:
// three agent-backed expert executors judge a vendor proposal in parallel,
// a barrier aggregates their findings, and the result routes to negotiation
// or dismissal.
package proposals
