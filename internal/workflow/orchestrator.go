package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"verdandi/internal/config"
	"verdandi/internal/logging"
	"verdandi/internal/services"
	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// RunOptions adjusts a single run.
type RunOptions struct {
	// StopAfter names a stage after which the run stops, leaving the
	// experiment running so a later run resumes from the next stage.
	StopAfter string
}

// Outcome reports where a run left the experiment.
type Outcome struct {
	ExperimentID int64
	Status       store.Status
	// Executed lists the stages that completed during this run.
	Executed []string
	// LastStage is the last stage that ran, successfully or not.
	LastStage string
	Decision  stage.Decision
	Paused    bool
	Stopped   bool
}

// Orchestrator drives experiments through the stage registry.
type Orchestrator struct {
	svc      Services
	cfg      *config.Config
	store    *store.Store
	registry *stage.Registry
	logger   *slog.Logger
	workerID string
}

// NewOrchestrator constructs an orchestrator.
func NewOrchestrator(svc Services) (*Orchestrator, error) {
	svc, err := svc.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		svc:      svc,
		cfg:      svc.Config,
		store:    svc.Store,
		registry: svc.Registry,
		logger:   logging.NewComponentLogger(svc.Logger, "orchestrator"),
		workerID: svc.Config.Worker.ID,
	}, nil
}

// Run advances one experiment from its resume point. Terminal experiments
// return immediately with their status; experiments awaiting review return a
// paused outcome. A stage failure marks the experiment failed and is returned
// as a *StageError; any other error comes from the store and is fatal.
func (o *Orchestrator) Run(ctx context.Context, experimentID int64, opts RunOptions) (Outcome, error) {
	exp, err := o.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load experiment %d: %w", experimentID, err)
	}
	outcome := Outcome{ExperimentID: exp.ID, Status: exp.Status}
	if exp.Status == store.StatusAwaitingReview {
		outcome.Paused = true
		return outcome, nil
	}
	if !exp.Status.Runnable() {
		return outcome, nil
	}

	stopAfter := -1
	if opts.StopAfter != "" {
		desc, err := o.registry.Lookup(opts.StopAfter)
		if err != nil {
			return outcome, err
		}
		stopAfter = desc.Order
	}

	prior, lastOrder, err := o.loadPrior(ctx, exp.ID)
	if err != nil {
		return outcome, err
	}

	runID := uuid.NewString()
	ctx = services.WithExperimentID(ctx, exp.ID)
	ctx = services.WithWorkerID(ctx, o.workerID)
	ctx = services.WithRequestID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)

	if err := o.store.TransitionStatus(ctx, exp.ID, exp.Status, store.StatusRunning, store.TransitionOptions{WorkerID: o.workerID}); err != nil {
		return outcome, fmt.Errorf("start run: %w", err)
	}
	resumeFrom := lastOrder + 1
	logger.Info("run started",
		logging.String(logging.FieldEventType, EventRunStarted),
		logging.String("previous_status", string(exp.Status)),
		logging.Int("resume_order", resumeFrom),
	)
	o.appendEvent(ctx, exp.ID, EventRunStarted, "", fmt.Sprintf("resuming at stage %d from %s", resumeFrom, exp.Status))
	exp.Status = store.StatusRunning
	outcome.Status = store.StatusRunning

	stopKeepAlive := o.keepReservation(ctx, exp.ID)
	defer stopKeepAlive()

	r := &run{o: o, exp: exp, runID: runID, logger: logger, outcome: &outcome, prior: prior}

	// A crash can separate a persisted gate result from the status change it
	// implies; re-apply the stored decision before running anything else.
	if lastOrder >= 0 {
		last, ok := o.registry.At(lastOrder)
		if ok && last.Gate != stage.GateNone {
			halt, err := r.applyGate(ctx, last, decisionOf(prior[last.Name]))
			if err != nil || halt {
				return outcome, err
			}
		}
	}

	for _, desc := range o.registry.Ordered() {
		if desc.Order < resumeFrom {
			continue
		}
		halt, err := r.runStage(ctx, desc)
		if err != nil || halt {
			return outcome, err
		}
		if desc.Order == stopAfter {
			outcome.Stopped = true
			logger.Info("run stopped early",
				logging.String(logging.FieldEventType, EventRunStopped),
				logging.String(logging.FieldStage, desc.Name),
			)
			o.appendEvent(ctx, exp.ID, EventRunStopped, desc.Name, "stopped after "+desc.Name)
			return outcome, nil
		}
	}
	err = r.finish(ctx, store.StatusCompleted, EventCompleted, "", "all stages completed")
	return outcome, err
}

// loadPrior decodes every successful result and returns them with the
// highest completed order (-1 when none).
func (o *Orchestrator) loadPrior(ctx context.Context, experimentID int64) (map[string]stage.Payload, int, error) {
	results, err := o.store.SuccessfulResults(ctx, experimentID)
	if err != nil {
		return nil, -1, fmt.Errorf("load stage results: %w", err)
	}
	prior := make(map[string]stage.Payload, len(results))
	last := -1
	for _, res := range results {
		if _, err := o.registry.Lookup(res.StageName); err != nil {
			return nil, -1, fmt.Errorf("experiment %d has result for unregistered stage: %w", experimentID, err)
		}
		payload, err := stage.Decode(res.StageName, res.Payload)
		if err != nil {
			return nil, -1, err
		}
		if payload != nil {
			prior[res.StageName] = payload
		}
		if res.StageOrder > last {
			last = res.StageOrder
		}
	}
	return prior, last, nil
}

func (o *Orchestrator) keepReservation(ctx context.Context, experimentID int64) func() {
	res, err := o.svc.Coordination.ReservationFor(ctx, experimentID)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "reservation lookup failed", "reservation_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "topic reservation will not be heart-beaten during this run"),
		)
		return func() {}
	}
	if res == nil {
		return func() {}
	}
	return o.svc.Coordination.KeepAlive(ctx, res.ID)
}

func (o *Orchestrator) releaseReservation(ctx context.Context, experimentID int64) {
	res, err := o.svc.Coordination.ReservationFor(ctx, experimentID)
	if err == nil && res != nil {
		err = o.svc.Coordination.Release(ctx, res.ID, true)
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "reservation release failed", "reservation_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "topic stays reserved until its ttl lapses"),
		)
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, experimentID int64, eventType, stageName, message string) {
	err := o.store.AppendEvent(ctx, store.Event{
		ExperimentID: experimentID,
		Type:         eventType,
		StageName:    stageName,
		Message:      message,
		WorkerID:     o.workerID,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Warn("event append failed", logging.Error(err), logging.String("event", eventType))
	}
}

// decisionOf recovers a gate decision from a persisted payload.
func decisionOf(p stage.Payload) stage.Decision {
	switch v := p.(type) {
	case stage.PreBuildScore:
		return v.Decision
	case stage.ReviewOutcome:
		if v.Approved {
			return stage.DecisionGo
		}
		return stage.DecisionNoGo
	case stage.ValidationReport:
		return v.Decision
	default:
		return stage.DecisionNone
	}
}
