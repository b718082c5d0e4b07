package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"verdandi/internal/logging"
	"verdandi/internal/services"
	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// run holds the state of one Orchestrator.Run invocation.
type run struct {
	o       *Orchestrator
	exp     *store.Experiment
	runID   string
	logger  *slog.Logger
	outcome *Outcome
	prior   map[string]stage.Payload
}

// runStage executes one stage and reports whether the run must stop.
func (r *run) runStage(ctx context.Context, desc stage.Descriptor) (bool, error) {
	o := r.o
	current, err := o.store.GetExperiment(ctx, r.exp.ID)
	if err != nil {
		return true, fmt.Errorf("reload experiment: %w", err)
	}
	if current.Status != store.StatusRunning {
		r.outcome.Status = current.Status
		if current.Status == store.StatusArchived {
			r.logger.Info("experiment archived, stopping at stage boundary",
				logging.String(logging.FieldEventType, "run_cancelled"),
				logging.String("next_stage", desc.Name),
			)
			return true, nil
		}
		return true, fmt.Errorf("experiment %d is %s before %s: %w", r.exp.ID, current.Status, desc.Name, store.ErrStatusConflict)
	}
	r.exp = current
	r.outcome.LastStage = desc.Name

	stageCtx := services.WithStage(ctx, desc.Name)
	logger := logging.WithContext(stageCtx, o.logger)
	in := stage.Input{
		Experiment:    *current,
		Stage:         desc.Name,
		Order:         desc.Order,
		CorrelationID: r.runID,
		WorkerID:      o.workerID,
		Prior:         maps.Clone(r.prior),
		Review: stage.Review{
			Required: o.cfg.Pipeline.RequireHumanReview,
			Decision: current.ReviewDecision,
			Reviewer: current.ReviewedBy,
			Notes:    current.ReviewNotes,
		},
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String(logging.FieldDependency, desc.Dependency),
		logging.Int("order", desc.Order),
	)
	o.appendEvent(stageCtx, current.ID, EventStageStarted, desc.Name, "")
	started := time.Now()

	var out stage.Output
	attempts, err := o.svc.Guard.Call(stageCtx, desc.Dependency, func(callCtx context.Context, attempt int) error {
		in.Attempt = attempt
		res, err := desc.Handler.Invoke(callCtx, in)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err == nil {
		err = validateOutput(desc, out)
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			logger.Info("stage interrupted by shutdown", logging.String(logging.FieldEventType, "stage_interrupted"))
			return true, err
		}
		return true, r.fail(stageCtx, desc, attempts, err)
	}

	if desc.Gate == stage.GateReview && out.Decision == stage.DecisionPending {
		return true, r.pause(stageCtx, desc)
	}

	data, err := stage.Encode(out.Payload)
	if err != nil {
		return true, r.fail(stageCtx, desc, attempts, err)
	}
	if _, err := o.store.SaveStageResult(stageCtx, store.StageResult{
		ExperimentID:  current.ID,
		StageName:     desc.Name,
		StageOrder:    desc.Order,
		Attempts:      attempts,
		Payload:       data,
		WorkerID:      o.workerID,
		CorrelationID: r.runID,
	}); err != nil {
		return true, fmt.Errorf("persist %s result: %w", desc.Name, err)
	}
	if err := o.store.AdvanceStage(stageCtx, current.ID, desc.Order); err != nil {
		return true, fmt.Errorf("advance to %s: %w", desc.Name, err)
	}

	r.prior[desc.Name] = out.Payload
	r.outcome.Executed = append(r.outcome.Executed, desc.Name)
	r.outcome.Decision = out.Decision
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("attempts", attempts),
		logging.String("decision", string(out.Decision)),
		logging.Duration("stage_duration", time.Since(started)),
	)
	o.appendEvent(stageCtx, current.ID, EventStageCompleted, desc.Name, string(out.Decision))

	if desc.Gate == stage.GateNone {
		return false, nil
	}
	return r.applyGate(stageCtx, desc, out.Decision)
}

// applyGate interprets a gate decision and reports whether the run halts.
func (r *run) applyGate(ctx context.Context, desc stage.Descriptor, decision stage.Decision) (bool, error) {
	switch desc.Gate {
	case stage.GateScoring, stage.GateReview:
		if decision == stage.DecisionGo {
			return false, nil
		}
		return true, r.finish(ctx, store.StatusNoGo, EventGateHalted, desc.Name,
			fmt.Sprintf("%s decided %s", desc.Name, decisionLabel(decision)))
	case stage.GateMonitor:
		switch decision {
		case stage.DecisionGo:
			return true, r.finish(ctx, store.StatusCompleted, EventCompleted, desc.Name, "validated")
		case stage.DecisionIterate:
			r.o.appendEvent(ctx, r.exp.ID, EventIterateSuggested, desc.Name, "start a follow-up experiment with the suggested changes")
			r.o.notifyIterate(ctx, r.exp)
			return true, r.finish(ctx, store.StatusCompleted, EventCompleted, desc.Name, "iterate suggested")
		default:
			return true, r.finish(ctx, store.StatusNoGo, EventGateHalted, desc.Name,
				fmt.Sprintf("%s decided %s", desc.Name, decisionLabel(decision)))
		}
	}
	return false, nil
}

// pause parks the experiment until a reviewer decides.
func (r *run) pause(ctx context.Context, desc stage.Descriptor) error {
	o := r.o
	err := o.store.TransitionStatus(ctx, r.exp.ID, store.StatusRunning, store.StatusAwaitingReview,
		store.TransitionOptions{WorkerID: o.workerID})
	if err != nil {
		return r.transitionErr(ctx, err)
	}
	r.outcome.Status = store.StatusAwaitingReview
	r.outcome.Paused = true
	r.outcome.Decision = stage.DecisionPending
	r.logger.Info("experiment awaiting review",
		logging.String(logging.FieldEventType, EventReviewRequested),
		logging.String(logging.FieldStage, desc.Name),
	)
	o.appendEvent(ctx, r.exp.ID, EventReviewRequested, desc.Name, "waiting for a reviewer decision")
	o.notifyReview(ctx, r.exp)
	return nil
}

// finish moves the experiment to a final status and runs the best-effort
// side effects: event, reservation release, notification, archive.
func (r *run) finish(ctx context.Context, to store.Status, eventType, stageName, message string) error {
	o := r.o
	err := o.store.TransitionStatus(ctx, r.exp.ID, store.StatusRunning, to, store.TransitionOptions{WorkerID: o.workerID})
	if err != nil {
		return r.transitionErr(ctx, err)
	}
	r.outcome.Status = to
	r.logger.Info("experiment finished",
		logging.String(logging.FieldEventType, eventType),
		logging.String("status", string(to)),
		logging.String(logging.FieldStage, stageName),
		logging.String("reason", message),
	)
	o.appendEvent(ctx, r.exp.ID, eventType, stageName, message)
	o.releaseReservation(ctx, r.exp.ID)
	o.notifyFinished(ctx, r.exp, to, stageName, r.prior)
	o.archiveSnapshot(ctx, r.exp.ID)
	return nil
}

// fail records the failed attempt and marks the experiment failed.
func (r *run) fail(ctx context.Context, desc stage.Descriptor, attempts int, stageErr error) error {
	o := r.o
	kind := services.KindOf(stageErr)
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = desc.Name + " failed without error detail"
	}

	logger := logging.WithContext(ctx, o.logger)
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_kind", string(kind)),
		logging.Int("attempts", attempts),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, failureHint(kind)),
	)

	if _, err := o.store.RecordStageFailure(ctx, store.StageResult{
		ExperimentID:  r.exp.ID,
		StageName:     desc.Name,
		StageOrder:    desc.Order,
		Attempts:      attempts,
		ErrorMessage:  message,
		WorkerID:      o.workerID,
		CorrelationID: r.runID,
	}); err != nil {
		return fmt.Errorf("record %s failure: %w", desc.Name, err)
	}
	err := o.store.TransitionStatus(ctx, r.exp.ID, store.StatusRunning, store.StatusFailed,
		store.TransitionOptions{WorkerID: o.workerID, ErrorMessage: message})
	if err != nil {
		return r.transitionErr(ctx, err)
	}
	r.outcome.Status = store.StatusFailed
	o.appendEvent(ctx, r.exp.ID, EventStageFailed, desc.Name, message)
	o.notifyStageError(ctx, r.exp, desc.Name, stageErr)
	return &StageError{
		ExperimentID: r.exp.ID,
		Stage:        desc.Name,
		Kind:         kind,
		Attempts:     attempts,
		Err:          stageErr,
	}
}

// transitionErr resolves a lost status race. Archival by an operator is an
// expected way to lose it; anything else is returned.
func (r *run) transitionErr(ctx context.Context, err error) error {
	if !errors.Is(err, store.ErrStatusConflict) {
		return fmt.Errorf("update experiment status: %w", err)
	}
	current, getErr := r.o.store.GetExperiment(ctx, r.exp.ID)
	if getErr != nil {
		return fmt.Errorf("reload experiment after status conflict: %w", getErr)
	}
	r.outcome.Status = current.Status
	if current.Status == store.StatusArchived {
		r.logger.Info("experiment archived during run", logging.String(logging.FieldEventType, "run_cancelled"))
		return nil
	}
	return fmt.Errorf("update experiment status: %w", err)
}

func validateOutput(desc stage.Descriptor, out stage.Output) error {
	if out.Payload == nil {
		return services.Wrap(services.ErrValidation, desc.Name, "validate output", "stage returned no payload", nil)
	}
	if got := out.Payload.StageName(); got != desc.Name {
		return services.Wrap(services.ErrValidation, desc.Name, "validate output",
			fmt.Sprintf("stage returned a %s payload", got), nil)
	}
	if desc.Gate != stage.GateNone && out.Decision == stage.DecisionNone {
		return services.Wrap(services.ErrValidation, desc.Name, "validate output", "gate stage returned no decision", nil)
	}
	return nil
}

func decisionLabel(d stage.Decision) string {
	if d == stage.DecisionNone {
		return "nothing"
	}
	return string(d)
}

func failureHint(kind services.Kind) string {
	switch kind {
	case services.KindCircuitOpen:
		return "dependency circuit is open; rerun after the cooldown"
	case services.KindTransient:
		return "retry budget exhausted; rerun the experiment to resume"
	default:
		return "permanent failure; inspect the stage input before rerunning"
	}
}
