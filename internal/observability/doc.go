// Package observability provides structured logging and Prometheus metrics
// for the gateway.
//
// This package implements:
//   - zap logger construction from level and format settings
//   - request-scoped loggers carrying the chi request ID
//   - the Collector holding every hephaestus_* metric
package observability
