// Package api defines wire-format types and converters shared by the worker's
// HTTP status endpoint and the CLI's JSON output. It translates store and
// workflow models into transport-friendly DTOs so consumers never couple to
// internal types.
//
// # Key Types
//
// Experiment: lifecycle row with review metadata and, on detail views, its
// stage results and event log.
//
// WorkerStatus: pool state, experiment counts, stage health and breakers.
//
// # Converters
//
// FromExperiment, FromStageResult, FromEvent, FromJob, FromReservation,
// FromCircuitState and FromStatusSummary map internal models one to one.
//
// ExperimentService wraps the store with the list and describe operations
// both surfaces need.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums are exposed as their lowercase string
// values. Timestamps use RFC3339 with milliseconds and are omitted when zero.
// Stage payloads are passed through as json.RawMessage to avoid
// double-encoding.
package api
