// Package services defines shared utilities consumed by the orchestrator, the
// stage handlers, and the resilience layer.
//
// Key responsibilities:
//   - Context helpers that stamp experiment IDs, stage names, attempt numbers,
//     worker IDs, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the retry policy
//     tell transient failures from permanent ones.
//
// Stage handlers should wrap outbound failures with Wrap so retry and breaker
// behaviour stays uniform across the pipeline.
package services
