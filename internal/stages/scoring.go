package stages

import (
	"context"
	"fmt"

	"verdandi/internal/stage"
)

// Scoring computes a weighted pre-build score and the go/no-go decision.
type Scoring struct {
	Threshold float64
}

// Invoke implements stage.Handler.
func (s *Scoring) Invoke(_ context.Context, in stage.Input) (stage.Output, error) {
	idea, err := stage.RequirePrior[stage.IdeaCandidate](in)
	if err != nil {
		return stage.Output{}, err
	}
	research, err := stage.RequirePrior[stage.ResearchReport](in)
	if err != nil {
		return stage.Output{}, err
	}

	components := []stage.ScoreComponent{
		{Name: "pain_severity", Score: painSeverityScore(idea.PainPoints), Weight: 0.25},
		{Name: "frequency", Score: frequencyScore(idea.PainPoints), Weight: 0.15},
		{Name: "willingness_to_pay", Score: wtpScore(research.WillingnessToPay), Weight: 0.25},
		{Name: "competitor_gaps", Score: min(100, 40+15*len(research.CompetitorGaps)), Weight: 0.20},
		{Name: "tam_size", Score: 65, Weight: 0.15},
	}
	total := WeightedTotal(components)
	decision := Decide(total, s.Threshold)

	score := stage.PreBuildScore{
		Components: components,
		TotalScore: total,
		Threshold:  s.Threshold,
		Decision:   decision,
		Reasoning:  fmt.Sprintf("Score %d/100 against threshold %.0f", total, s.Threshold),
		Risks:      []string{"Incumbent suites may add the missing feature"},
		Opportunities: []string{
			"Low-cost acquisition through " + idea.TargetAudience + " communities",
		},
	}
	return stage.Output{Payload: score, Decision: decision}, nil
}

// HealthCheck implements stage.Handler.
func (s *Scoring) HealthCheck(context.Context) stage.Health {
	if s.Threshold <= 0 || s.Threshold > 100 {
		return stage.Unhealthy(stage.NameScoring, "score threshold must be within (0, 100]")
	}
	return stage.Healthy(stage.NameScoring)
}

// WeightedTotal sums score*weight over the components, truncated to an int.
func WeightedTotal(components []stage.ScoreComponent) int {
	var total float64
	for _, c := range components {
		total += float64(c.Score) * c.Weight
	}
	return int(total)
}

// Decide maps a total score onto a gate decision.
func Decide(total int, threshold float64) stage.Decision {
	if float64(total) >= threshold {
		return stage.DecisionGo
	}
	return stage.DecisionNoGo
}

func painSeverityScore(pains []stage.PainPoint) int {
	if len(pains) == 0 {
		return 50
	}
	sum := 0
	for _, p := range pains {
		sum += p.Severity
	}
	return min(100, sum*10/len(pains))
}

func frequencyScore(pains []stage.PainPoint) int {
	best := 40
	for _, p := range pains {
		switch p.Frequency {
		case "daily":
			best = max(best, 85)
		case "weekly":
			best = max(best, 70)
		case "monthly":
			best = max(best, 50)
		}
	}
	return best
}

func wtpScore(evidence string) int {
	if evidence == "" {
		return 40
	}
	return 80
}
