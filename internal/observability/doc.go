// Package observability provides structured logging and metrics
// for the auth service.
//
// This package implements:
//   - Logger construction (zap, JSON or console encoding)
//   - Prometheus collectors for operations, events and HTTP traffic
//   - HTTP instrumentation middleware and the /metrics handler
package observability
