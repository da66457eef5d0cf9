// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sessions and /v1/sessions/stop to control extraction.
//   - GET /v1/sessions/current for the live session snapshot.
//   - GET /v1/platforms for the registered collector ids.
//   - GET /v1/sessions and /v1/sessions/{session_id} for persisted history via
//     the store.SessionRepository interface.
//   - GET /v1/sessions/live to stream progress events over a websocket.
package api
