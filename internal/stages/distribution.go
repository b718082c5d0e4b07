package stages

import (
	"context"
	"fmt"

	"verdandi/internal/stage"
)

var distributionPlatforms = []struct {
	name  string
	reach int
}{
	{"reddit", 1200},
	{"hackernews", 800},
	{"twitter", 500},
	{"linkedin", 300},
}

// Distribution drafts launch posts for each channel. Posts are drafted,
// not published; Posted stays false until a real integration sends them.
type Distribution struct{}

// Invoke implements stage.Handler.
func (Distribution) Invoke(_ context.Context, in stage.Input) (stage.Output, error) {
	dep, err := stage.RequirePrior[stage.Deployment](in)
	if err != nil {
		return stage.Output{}, err
	}
	mvp, _ := stage.PriorResult[stage.MVPDefinition](in)
	name := mvp.ProductName
	if name == "" {
		name = in.Experiment.Title
	}

	report := stage.DistributionReport{SitemapURL: dep.URL + "/sitemap.xml"}
	for _, p := range distributionPlatforms {
		report.Posts = append(report.Posts, stage.SocialPost{
			Platform: p.name,
			Content:  fmt.Sprintf("%s: %s %s", name, mvp.Tagline, dep.URL),
		})
		report.ReachEstimate += p.reach
	}
	return stage.Output{Payload: report}, nil
}

// HealthCheck implements stage.Handler.
func (Distribution) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.NameDistribution)
}
