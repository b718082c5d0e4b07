package workflow

import (
	"context"
	"errors"

	"verdandi/internal/logging"
	"verdandi/internal/notifications"
	"verdandi/internal/stage"
	"verdandi/internal/store"
)

func (o *Orchestrator) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if o.svc.Notifier == nil {
		return
	}
	if err := o.svc.Notifier.Publish(ctx, event, payload); err != nil {
		logger := logging.WithContext(ctx, o.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification skipped", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func (o *Orchestrator) notifyReview(ctx context.Context, exp *store.Experiment) {
	o.publish(ctx, notifications.EventReviewRequested, notifications.Payload{
		"experimentID": exp.ID,
		"title":        exp.Title,
	})
}

func (o *Orchestrator) notifyIterate(ctx context.Context, exp *store.Experiment) {
	o.publish(ctx, notifications.EventIterateSuggested, notifications.Payload{
		"experimentID": exp.ID,
		"title":        exp.Title,
	})
}

func (o *Orchestrator) notifyStageError(ctx context.Context, exp *store.Experiment, stageName string, stageErr error) {
	o.publish(ctx, notifications.EventStageError, notifications.Payload{
		"experimentID": exp.ID,
		"title":        exp.Title,
		"stage":        stageName,
		"error":        stageErr,
	})
}

func (o *Orchestrator) notifyFinished(ctx context.Context, exp *store.Experiment, status store.Status, stageName string, prior map[string]stage.Payload) {
	payload := notifications.Payload{
		"experimentID": exp.ID,
		"title":        exp.Title,
		"stage":        stageName,
	}
	if status != store.StatusCompleted {
		o.publish(ctx, notifications.EventPipelineNoGo, payload)
		return
	}
	if dep, ok := prior[stage.NameDeploy].(stage.Deployment); ok {
		payload["url"] = dep.URL
	}
	o.publish(ctx, notifications.EventPipelineCompleted, payload)
}

func (o *Orchestrator) archiveSnapshot(ctx context.Context, experimentID int64) {
	if o.svc.Archiver == nil {
		return
	}
	if _, err := o.svc.Archiver.Archive(ctx, experimentID); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "experiment snapshot failed", "archive_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check archive backend configuration"),
			logging.String(logging.FieldImpact, "the experiment has no archived snapshot"),
		)
	}
}
