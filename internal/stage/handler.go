package stage

import (
	"context"

	"verdandi/internal/store"
)

// Handler describes the contract the orchestrator needs from each stage.
// Errors should be tagged with a services marker so the retry policy can tell
// transient failures from permanent ones.
type Handler interface {
	Invoke(context.Context, Input) (Output, error)
	HealthCheck(context.Context) Health
}

// Review carries the human review signal into the review stage.
type Review struct {
	Required bool
	Decision store.ReviewDecision
	Reviewer string
	Notes    string
}

// Input is everything a stage invocation may read.
type Input struct {
	Experiment    store.Experiment
	Stage         string
	Order         int
	Attempt       int
	CorrelationID string
	WorkerID      string
	// Prior holds the decoded results of every earlier successful stage,
	// keyed by stage name. Later stages are never present.
	Prior  map[string]Payload
	Review Review
	// Exclude lists topics discovery must not propose again.
	Exclude []string
}

// Output is the result of a successful invocation.
type Output struct {
	Payload  Payload
	Decision Decision
}

// Decision is a gate stage's verdict.
type Decision string

const (
	DecisionNone    Decision = ""
	DecisionGo      Decision = "GO"
	DecisionNoGo    Decision = "NO_GO"
	DecisionIterate Decision = "ITERATE"
	// DecisionPending is returned by the review gate while no human decision exists.
	DecisionPending Decision = "PENDING"
)

// Gate identifies how the orchestrator interprets a stage's decision.
type Gate string

const (
	GateNone    Gate = ""
	GateScoring Gate = "scoring"
	GateReview  Gate = "review"
	GateMonitor Gate = "monitor"
)

// HandlerFunc adapts a function into a Handler that always reports healthy.
type HandlerFunc func(context.Context, Input) (Output, error)

// Invoke implements Handler.
func (f HandlerFunc) Invoke(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// HealthCheck implements Handler.
func (f HandlerFunc) HealthCheck(context.Context) Health {
	return Healthy("func")
}
