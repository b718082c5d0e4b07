package stages

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"verdandi/internal/stage"
)

// deploymentSpace namespaces the name-based ids handed out by the reference
// hosting and analytics stages.
var deploymentSpace = uuid.MustParse("6f1c2b0e-4a51-4d7e-9a53-1f2b6c8d9e01")

// Deploy publishes the landing page. The reference implementation derives a
// stable deployment from the experiment id so reruns are idempotent.
type Deploy struct {
	// BaseDomain hosts preview deployments when no domain is suggested.
	BaseDomain string
}

// Invoke implements stage.Handler.
func (d *Deploy) Invoke(_ context.Context, in stage.Input) (stage.Output, error) {
	if _, err := stage.RequirePrior[stage.LandingPage](in); err != nil {
		return stage.Output{}, err
	}
	mvp, _ := stage.PriorResult[stage.MVPDefinition](in)

	project := fmt.Sprintf("%s-%d", slug(in.Experiment.Title), in.Experiment.ID)
	domain := project + "." + d.baseDomain()
	if len(mvp.DomainSuggestions) > 0 {
		domain = mvp.DomainSuggestions[0]
	}
	id := stableID("deploy", in.Experiment.ID)

	dep := stage.Deployment{
		Domain:       domain,
		ProjectName:  project,
		URL:          "https://" + domain,
		DeploymentID: id,
		SSLActive:    true,
	}
	return stage.Output{Payload: dep}, nil
}

// HealthCheck implements stage.Handler.
func (d *Deploy) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.NameDeploy)
}

func (d *Deploy) baseDomain() string {
	if d.BaseDomain == "" {
		return "pages.dev"
	}
	return d.BaseDomain
}

// Analytics registers the deployed site with the analytics provider.
type Analytics struct {
	// Host is the analytics server base URL.
	Host string
}

// Invoke implements stage.Handler.
func (a *Analytics) Invoke(_ context.Context, in stage.Input) (stage.Output, error) {
	dep, err := stage.RequirePrior[stage.Deployment](in)
	if err != nil {
		return stage.Output{}, err
	}
	host := a.Host
	if host == "" {
		host = "https://analytics.example.com"
	}
	websiteID := stableID("analytics", in.Experiment.ID)
	setup := stage.AnalyticsSetup{
		WebsiteID:         websiteID,
		TrackingScriptURL: host + "/script.js",
		DashboardURL:      host + "/websites/" + websiteID,
		Injected:          dep.URL != "",
	}
	return stage.Output{Payload: setup}, nil
}

// HealthCheck implements stage.Handler.
func (a *Analytics) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.NameAnalyticsSetup)
}

func stableID(kind string, experimentID int64) string {
	return uuid.NewSHA1(deploymentSpace, []byte(kind+":"+strconv.FormatInt(experimentID, 10))).String()
}
