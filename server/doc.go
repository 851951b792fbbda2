// Package server exposes a guard orchestrator to operators over HTTP.
//
// Routes:
//
//   - GET  /health: service health, degraded while a bulkhead sheds load or a breaker is not closed
//   - GET  /version: build information
//   - GET  /metrics: Prometheus exposition of bulkhead and breaker state
//   - GET  /stats: fleet-wide statistics
//   - GET  /stats/:resource: one resource
//   - GET  /breakers: every circuit breaker
//   - POST /breakers/:resource/reset: force a breaker closed
//
// Every route passes through the middleware in server/middleware: panic
// recovery, request ids and request logging.
package server
