// Package logging assembles structured slog loggers and formatting helpers used
// across Verdandi components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestrator and stage code
// automatically tag log lines with experiment IDs, stages, attempts, and
// correlation IDs. The package also provides a no-op logger for tests.
package logging
