package logging

import (
	"context"
	"log/slog"

	"verdandi/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldExperimentID is the standardized key for experiment identifiers.
	FieldExperimentID = "experiment_id"
	// FieldStage is the standardized key for pipeline stage names.
	FieldStage = "stage"
	// FieldAttempt is the standardized key for 1-based stage attempt numbers.
	FieldAttempt = "attempt"
	// FieldWorkerID is the standardized key for worker identities.
	FieldWorkerID = "worker_id"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldDependency names the external dependency a breaker guards.
	FieldDependency = "dependency"
	// FieldTopicKey is the standardized key for reservation topic keys.
	FieldTopicKey = "topic_key"
	// FieldJobID is the standardized key for backlog job identifiers.
	FieldJobID = "job_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a failure.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.ExperimentIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldExperimentID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if attempt, ok := services.AttemptFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldAttempt, attempt))
	}
	if worker, ok := services.WorkerIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorkerID, worker))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
