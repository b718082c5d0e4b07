package stages

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"

	"verdandi/internal/services"
	"verdandi/internal/stage"
)

// LandingTemplate names the built-in page layout.
const LandingTemplate = "waitlist-v1"

//go:embed landing_page.html.tmpl
var landingSource string

var landingTemplate = template.Must(template.New(LandingTemplate).Parse(landingSource))

type landingView struct {
	stage.LandingPage
	Features []stage.Feature
}

// Landing renders the waitlist landing page for the MVP.
type Landing struct{}

// Invoke implements stage.Handler.
func (Landing) Invoke(_ context.Context, in stage.Input) (stage.Output, error) {
	mvp, err := stage.RequirePrior[stage.MVPDefinition](in)
	if err != nil {
		return stage.Output{}, err
	}
	idea, _ := stage.PriorResult[stage.IdeaCandidate](in)

	page := stage.LandingPage{
		Headline:        mvp.Tagline,
		Subheadline:     mvp.ValueProposition,
		CTAText:         mvp.CTAText,
		PageTitle:       mvp.ProductName + " | " + mvp.Tagline,
		MetaDescription: mvp.ValueProposition,
		Template:        LandingTemplate,
		FAQ: []stage.FAQItem{
			{Question: "Who is " + mvp.ProductName + " for?", Answer: mvp.TargetPersona},
			{Question: "How much will it cost?", Answer: mvp.PricingModel},
		},
	}
	if idea.ProblemStatement != "" {
		page.FAQ = append(page.FAQ, stage.FAQItem{Question: "What problem does it solve?", Answer: idea.ProblemStatement})
	}

	var buf bytes.Buffer
	if err := landingTemplate.Execute(&buf, landingView{LandingPage: page, Features: mvp.Features}); err != nil {
		return stage.Output{}, services.Wrap(services.ErrPermanent, in.Stage, "render landing page", "template execution failed", err)
	}
	page.RenderedHTML = buf.String()
	return stage.Output{Payload: page}, nil
}

// HealthCheck implements stage.Handler.
func (Landing) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.NameLandingPage)
}
