package api

import (
	"time"

	"verdandi/internal/resilience"
	"verdandi/internal/stage"
	"verdandi/internal/store"
	"verdandi/internal/workflow"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromExperiment converts a store row. The stage name is resolved against the
// registry when one is provided; a fresh experiment reports no stage.
func FromExperiment(exp *store.Experiment, reg *stage.Registry) Experiment {
	if exp == nil {
		return Experiment{}
	}
	out := Experiment{
		ID:           exp.ID,
		Title:        exp.Title,
		Summary:      exp.Summary,
		TopicKey:     exp.TopicKey,
		Status:       string(exp.Status),
		CurrentStage: exp.CurrentStage,
		WorkerID:     exp.WorkerID,
		ErrorMessage: exp.ErrorMessage,
		CreatedAt:    formatTime(exp.CreatedAt),
		UpdatedAt:    formatTime(exp.UpdatedAt),
		NeedsReview:  exp.Status == store.StatusAwaitingReview,
	}
	if reg != nil {
		if desc, ok := reg.At(exp.CurrentStage); ok {
			out.StageName = desc.Name
		}
	}
	if exp.ReviewDecision != store.ReviewNone {
		out.Review = &Review{
			Decision:   string(exp.ReviewDecision),
			Reviewer:   exp.ReviewedBy,
			Notes:      exp.ReviewNotes,
			ReviewedAt: formatTime(exp.ReviewedAt),
		}
	}
	return out
}

// FromStageResult converts one stage attempt.
func FromStageResult(res store.StageResult) StageResult {
	return StageResult{
		Stage:         res.StageName,
		Order:         res.StageOrder,
		Status:        string(res.Status),
		Attempts:      res.Attempts,
		ErrorMessage:  res.ErrorMessage,
		WorkerID:      res.WorkerID,
		CorrelationID: res.CorrelationID,
		CreatedAt:     formatTime(res.CreatedAt),
		Payload:       res.Payload,
	}
}

// FromEvent converts one event log entry.
func FromEvent(ev store.Event) Event {
	return Event{
		Type:      ev.Type,
		Stage:     ev.StageName,
		Message:   ev.Message,
		WorkerID:  ev.WorkerID,
		CreatedAt: formatTime(ev.CreatedAt),
	}
}

// FromJob converts a backlog job.
func FromJob(job store.Job) Job {
	return Job{
		ID:           job.ID,
		Kind:         string(job.Kind),
		ExperimentID: job.ExperimentID,
		Status:       string(job.Status),
		ClaimedBy:    job.ClaimedBy,
		Attempts:     job.Attempts,
		LastError:    job.LastError,
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
}

// FromReservation converts a topic reservation.
func FromReservation(res store.Reservation) Reservation {
	return Reservation{
		ID:           res.ID,
		TopicKey:     res.TopicKey,
		Holder:       res.Holder,
		Status:       string(res.Status),
		ExperimentID: res.ExperimentID,
		ExpiresAt:    formatTime(res.ExpiresAt),
	}
}

// FromCircuitState converts a persisted breaker row.
func FromCircuitState(state store.CircuitState) Breaker {
	return Breaker{
		Dependency: state.Dependency,
		State:      state.State,
		Failures:   state.Failures,
		OpenedAt:   formatTime(state.OpenedAt),
	}
}

// FromBreakerSnapshot converts a live breaker snapshot.
func FromBreakerSnapshot(snap resilience.Snapshot) Breaker {
	return Breaker{
		Dependency: snap.Dependency,
		State:      string(snap.State),
		Failures:   snap.Failures,
		OpenedAt:   formatTime(snap.OpenedAt),
	}
}

// FromStatusSummary converts the pool summary.
func FromStatusSummary(summary workflow.StatusSummary) WorkerStatus {
	out := WorkerStatus{
		Running:     summary.Running,
		WorkerID:    summary.WorkerID,
		Slots:       summary.Slots,
		Inflight:    append([]int64{}, summary.Inflight...),
		Finished:    summary.Finished,
		Failed:      summary.Failed,
		LastError:   summary.LastError,
		Experiments: make(map[string]int, len(summary.Experiments)),
		StageHealth: make([]StageHealth, 0, len(summary.StageHealth)),
		Breakers:    make([]Breaker, 0, len(summary.Breakers)),
	}
	for status, n := range summary.Experiments {
		out.Experiments[string(status)] = n
	}
	if summary.LastJob != nil {
		job := FromJob(*summary.LastJob)
		out.LastJob = &job
	}
	for _, h := range summary.StageHealth {
		out.StageHealth = append(out.StageHealth, StageHealth{
			Name:       h.Name,
			Dependency: h.Dependency,
			Ready:      h.Ready,
			Detail:     h.Detail,
		})
	}
	for _, snap := range summary.Breakers {
		out.Breakers = append(out.Breakers, FromBreakerSnapshot(snap))
	}
	return out
}
