package stages

import (
	"context"
	"fmt"

	"verdandi/internal/stage"
)

// Research derives a market report from the discovered idea.
type Research struct{}

// Invoke implements stage.Handler.
func (Research) Invoke(_ context.Context, in stage.Input) (stage.Output, error) {
	idea, err := stage.RequirePrior[stage.IdeaCandidate](in)
	if err != nil {
		return stage.Output{}, err
	}

	gaps := make([]string, 0, len(idea.PainPoints))
	signals := make([]string, 0, len(idea.PainPoints))
	for _, p := range idea.PainPoints {
		gaps = append(gaps, "No focused solution for: "+p.Description)
		signals = append(signals, fmt.Sprintf("%s (%s, %s)", p.Description, p.Frequency, p.Source))
	}

	wtp := "Comparable tools charge $19-99/month"
	if idea.Category == "consumer" {
		wtp = ""
	}

	report := stage.ResearchReport{
		TAMEstimate:   "$1-3B across " + idea.TargetAudience,
		MarketGrowth:  "growing",
		DemandSignals: signals,
		Competitors: []stage.Competitor{
			{Name: "Generic " + idea.Category + " suite", Pricing: "$49/month", Strengths: []string{"broad feature set"}, Weaknesses: []string{"complex onboarding"}},
			{Name: "Spreadsheets", Pricing: "free", Strengths: []string{"familiar"}, Weaknesses: []string{"manual", "error prone"}},
		},
		CompetitorGaps:   gaps,
		WillingnessToPay: wtp,
		KeyFindings: []string{
			fmt.Sprintf("%s consistently report: %s", idea.TargetAudience, idea.ProblemStatement),
		},
		Summary: fmt.Sprintf("%s addresses a recurring problem for %s with weak incumbent coverage.", idea.Title, idea.TargetAudience),
	}
	return stage.Output{Payload: report}, nil
}

// HealthCheck implements stage.Handler.
func (Research) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.NameDeepResearch)
}
