// Package http provides the REST handlers for inspecting and stopping
// supervised sessions.
//
// Routes:
//   - GET    /health               liveness and session count
//   - GET    /metrics              Prometheus exposition
//   - GET    /sessions             every session, oldest first
//   - GET    /sessions/:id         one session
//   - POST   /sessions/:id/abort   tear the current run down, report each step
//   - DELETE /sessions/:id         tear down and forget the session
package http
