// Package transport provides the resilient client used for all outbound
// peer calls: bounded retry with exponential backoff for retryable
// failures, and a per-peer circuit breaker that fails fast once a peer
// has exceeded its failure threshold.
//
// The package does not know about wire encodings. It decorates the
// abstract Caller boundary, so production wiring and in-process test
// fakes get identical retry semantics.
package transport
