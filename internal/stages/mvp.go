package stages

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"verdandi/internal/stage"
)

const maxFeatures = 4

// MVP turns the idea and research into a minimal product definition.
type MVP struct{}

// Invoke implements stage.Handler.
func (MVP) Invoke(_ context.Context, in stage.Input) (stage.Output, error) {
	idea, err := stage.RequirePrior[stage.IdeaCandidate](in)
	if err != nil {
		return stage.Output{}, err
	}
	research, _ := stage.PriorResult[stage.ResearchReport](in)

	caser := cases.Title(language.English)
	features := make([]stage.Feature, 0, maxFeatures)
	for _, p := range idea.PainPoints {
		if len(features) == maxFeatures {
			break
		}
		features = append(features, stage.Feature{
			Title:       caser.String(firstWords(p.Description, 4)),
			Description: "Removes the need for: " + strings.ToLower(p.Description),
		})
	}
	if len(features) == 0 {
		features = append(features, stage.Feature{Title: "Core Workflow", Description: idea.OneLiner})
	}

	pricing := "Freemium with a $19/month pro tier"
	if research.WillingnessToPay == "" {
		pricing = "Free beta with optional tip jar"
	}

	base := slug(idea.Title)
	def := stage.MVPDefinition{
		ProductName:       idea.Title,
		Tagline:           idea.OneLiner,
		ValueProposition:  fmt.Sprintf("%s for %s", idea.OneLiner, idea.TargetAudience),
		TargetPersona:     idea.TargetAudience,
		Features:          features,
		PricingModel:      pricing,
		CTAText:           "Join the waitlist",
		DomainSuggestions: []string{base + ".com", "get" + base + ".io", base + ".app"},
	}
	return stage.Output{Payload: def}, nil
}

// HealthCheck implements stage.Handler.
func (MVP) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.NameMVPDefinition)
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
