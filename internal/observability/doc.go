// Package observability provides structured logging and Prometheus metrics
// for the compliance core.
//
// This package implements:
//   - zap loggers configured per environment
//   - request id propagation from chi into log fields
//   - access decision, ledger integrity, and HTTP request metrics
package observability
