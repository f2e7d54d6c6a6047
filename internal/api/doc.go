// Package api implements the status HTTP server for the gateway.
//
// It is read-only and exposes three endpoints under /api/v1:
//   - /health: per-component checks, 200 when the broker link is up and the
//     chat adapter is running, 503 otherwise
//   - /metrics: relay counters from the bridge plus runtime statistics
//   - /conversations: the conversation registry, when the database is enabled
//
// Every request passes through request-id, logging and panic-recovery
// middleware. The server binds to 127.0.0.1:5001 by default.
package api
