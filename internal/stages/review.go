package stages

import (
	"context"

	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// Review is the human review gate. It never blocks; a missing decision is
// reported as DecisionPending and the orchestrator parks the experiment.
type Review struct{}

// Invoke implements stage.Handler.
func (Review) Invoke(_ context.Context, in stage.Input) (stage.Output, error) {
	r := in.Review
	if !r.Required {
		return stage.Output{
			Payload:  stage.ReviewOutcome{Approved: true, Skipped: true, Reason: "Human review disabled"},
			Decision: stage.DecisionGo,
		}, nil
	}
	switch r.Decision {
	case store.ReviewApproved:
		return stage.Output{
			Payload: stage.ReviewOutcome{
				Approved: true,
				Reviewer: r.Reviewer,
				Notes:    r.Notes,
				Reason:   "Previously approved",
			},
			Decision: stage.DecisionGo,
		}, nil
	case store.ReviewRejected:
		return stage.Output{
			Payload: stage.ReviewOutcome{
				Reviewer: r.Reviewer,
				Notes:    r.Notes,
				Reason:   "Rejected by reviewer",
			},
			Decision: stage.DecisionNoGo,
		}, nil
	default:
		return stage.Output{
			Payload:  stage.ReviewOutcome{Reason: "Awaiting human review"},
			Decision: stage.DecisionPending,
		}, nil
	}
}

// HealthCheck implements stage.Handler.
func (Review) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.NameHumanReview)
}
