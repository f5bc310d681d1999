// Package observability provides structured logging and Prometheus metrics
// for the assistant backend.
//
// Logging is zap-based; metrics cover HTTP traffic and every guard decision.
package observability
