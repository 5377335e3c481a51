// Package server implements the HTTP server using Echo framework.
//
// Routes: poll API (list, get, create, add option, open/close), votes, live updates over
// WebSocket, health probes, version and Prometheus metrics.
// Handlers split by concern: handlers_polls.go, handlers_votes.go, handlers_ws.go, handlers_health.go.
package server
