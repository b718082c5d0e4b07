// Package resilience guards calls to external dependencies.
//
// A Policy bounds retries with exponential backoff plus positive jitter and
// only retries errors services.KindOf classifies as transient. A Breaker per
// dependency fast-fails callers while the dependency is known to be down and
// lets a single probe through once its cooldown elapses. Guard composes the
// two: every attempt inside the retry loop asks the dependency's breaker
// first, and an open breaker returns a *CircuitOpenError without consuming
// an attempt.
//
// Breaker transitions are reported to a StateSink so the last known state of
// each dependency survives restarts and can be listed by operators.
package resilience
