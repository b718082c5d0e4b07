package stages_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"verdandi/internal/config"
	"verdandi/internal/services"
	"verdandi/internal/stage"
	"verdandi/internal/stages"
	"verdandi/internal/store"
)

func newInput(t *testing.T, reg *stage.Registry, name string, prior map[string]stage.Payload) stage.Input {
	t.Helper()
	desc, err := reg.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", name, err)
	}
	return stage.Input{
		Experiment: store.Experiment{ID: 7, Title: "Invoice Chaser"},
		Stage:      desc.Name,
		Order:      desc.Order,
		Attempt:    1,
		Prior:      prior,
	}
}

func TestPipelineRunsEndToEndWithoutReview(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.RequireHumanReview = false
	reg, err := stages.NewRegistry(&cfg, stages.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if reg.Len() != 10 {
		t.Fatalf("expected 10 stages, got %d", reg.Len())
	}

	prior := map[string]stage.Payload{}
	var last stage.Output
	for _, desc := range reg.Ordered() {
		in := newInput(t, reg, desc.Name, prior)
		in.Review = stage.Review{Required: cfg.Pipeline.RequireHumanReview}
		out, err := desc.Handler.Invoke(context.Background(), in)
		if err != nil {
			t.Fatalf("%s: %v", desc.Name, err)
		}
		if out.Payload == nil || out.Payload.StageName() != desc.Name {
			t.Fatalf("%s produced payload for wrong stage: %#v", desc.Name, out.Payload)
		}
		if desc.Gate != stage.GateNone && out.Decision == stage.DecisionNone {
			t.Fatalf("gate %s returned no decision", desc.Name)
		}
		prior[desc.Name] = out.Payload
		last = out
	}
	if last.Decision != stage.DecisionGo {
		t.Fatalf("expected monitor GO with sample metrics, got %q", last.Decision)
	}
	report := last.Payload.(stage.ValidationReport)
	if report.DaysMonitored != 7 || len(report.NextSteps) == 0 {
		t.Fatalf("unexpected validation report: %+v", report)
	}
}

func TestDescriptorsDependencies(t *testing.T) {
	cfg := config.Default()
	reg, err := stages.NewRegistry(&cfg, stages.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	review, err := reg.Lookup(stage.NameHumanReview)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if review.Dependency != "" || review.Gate != stage.GateReview {
		t.Fatalf("unexpected review descriptor: %+v", review)
	}
	deps := reg.Dependencies()
	want := []string{stages.DependencyAnalytics, stages.DependencyHosting, stages.DependencyLLM, stages.DependencySearch, stages.DependencySocial}
	for _, dep := range want {
		found := false
		for _, got := range deps {
			if got == dep {
				found = true
			}
		}
		if !found {
			t.Fatalf("dependency %q missing from %v", dep, deps)
		}
	}
}

func TestOverridesReplaceHandler(t *testing.T) {
	cfg := config.Default()
	called := false
	override := stage.HandlerFunc(func(context.Context, stage.Input) (stage.Output, error) {
		called = true
		return stage.Output{Payload: stage.ResearchReport{Summary: "custom"}}, nil
	})
	reg, err := stages.NewRegistry(&cfg, stages.Options{Overrides: map[string]stage.Handler{stage.NameDeepResearch: override}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	desc, _ := reg.Lookup(stage.NameDeepResearch)
	if _, err := desc.Handler.Invoke(context.Background(), stage.Input{}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !called {
		t.Fatal("override was not installed")
	}
}

func TestIdeaDiscoverySkipsExcludedTopics(t *testing.T) {
	catalogue := stages.DefaultCatalogue()[:2]
	d := &stages.IdeaDiscovery{Catalogue: catalogue}

	out, err := d.Invoke(context.Background(), stage.Input{Stage: stage.NameIdeaDiscovery, Exclude: []string{"  INVOICE chaser "}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := out.Payload.(stage.IdeaCandidate).Title; got != catalogue[1].Title {
		t.Fatalf("expected second idea, got %q", got)
	}

	_, err = d.Invoke(context.Background(), stage.Input{Stage: stage.NameIdeaDiscovery, Exclude: []string{catalogue[0].Title, catalogue[1].Title}})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if services.IsTransient(err) {
		t.Fatalf("exhaustion must not be retried: %v", err)
	}
}

func TestScoringDecisions(t *testing.T) {
	catalogue := stages.DefaultCatalogue()
	byTitle := map[string]stage.IdeaCandidate{}
	for _, idea := range catalogue {
		byTitle[idea.Title] = idea
	}
	cases := []struct {
		title string
		want  stage.Decision
	}{
		{"Invoice Chaser", stage.DecisionGo},
		{"Vet Visit Log", stage.DecisionNoGo},
	}
	for _, tc := range cases {
		t.Run(tc.title, func(t *testing.T) {
			idea := byTitle[tc.title]
			prior := map[string]stage.Payload{stage.NameIdeaDiscovery: idea}
			research, err := stages.Research{}.Invoke(context.Background(), stage.Input{Prior: prior})
			if err != nil {
				t.Fatalf("research: %v", err)
			}
			prior[stage.NameDeepResearch] = research.Payload

			s := &stages.Scoring{Threshold: 70}
			out, err := s.Invoke(context.Background(), stage.Input{Prior: prior})
			if err != nil {
				t.Fatalf("scoring: %v", err)
			}
			score := out.Payload.(stage.PreBuildScore)
			if out.Decision != tc.want || score.Decision != tc.want {
				t.Fatalf("decision = %q (total %d), want %q", out.Decision, score.TotalScore, tc.want)
			}
			if score.TotalScore != stages.WeightedTotal(score.Components) {
				t.Fatalf("total %d does not match components", score.TotalScore)
			}
		})
	}
}

func TestScoringRequiresPriorResults(t *testing.T) {
	s := &stages.Scoring{Threshold: 70}
	_, err := s.Invoke(context.Background(), stage.Input{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecideThreshold(t *testing.T) {
	if stages.Decide(70, 70) != stage.DecisionGo {
		t.Fatal("score equal to threshold should pass")
	}
	if stages.Decide(69, 70) != stage.DecisionNoGo {
		t.Fatal("score below threshold should fail")
	}
}

func TestReviewGate(t *testing.T) {
	cases := []struct {
		name     string
		review   stage.Review
		decision stage.Decision
		approved bool
		reason   string
	}{
		{"disabled", stage.Review{Required: false}, stage.DecisionGo, true, "Human review disabled"},
		{"approved", stage.Review{Required: true, Decision: store.ReviewApproved, Reviewer: "ana"}, stage.DecisionGo, true, "Previously approved"},
		{"rejected", stage.Review{Required: true, Decision: store.ReviewRejected}, stage.DecisionNoGo, false, "Rejected by reviewer"},
		{"pending", stage.Review{Required: true}, stage.DecisionPending, false, "Awaiting human review"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := stages.Review{}.Invoke(context.Background(), stage.Input{Review: tc.review})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			outcome := out.Payload.(stage.ReviewOutcome)
			if out.Decision != tc.decision || outcome.Approved != tc.approved || outcome.Reason != tc.reason {
				t.Fatalf("got decision %q outcome %+v", out.Decision, outcome)
			}
		})
	}
}

func TestLandingEscapesContent(t *testing.T) {
	mvp := stage.MVPDefinition{
		ProductName:      "Tag<script>",
		Tagline:          "Safe & sound",
		ValueProposition: "x",
		CTAText:          "Join",
		Features:         []stage.Feature{{Title: "<b>bold</b>", Description: "d"}},
	}
	out, err := stages.Landing{}.Invoke(context.Background(), stage.Input{Prior: map[string]stage.Payload{stage.NameMVPDefinition: mvp}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	page := out.Payload.(stage.LandingPage)
	if strings.Contains(page.RenderedHTML, "<b>bold</b>") || strings.Contains(page.RenderedHTML, "<script>") {
		t.Fatalf("expected escaped HTML, got %s", page.RenderedHTML)
	}
	if !strings.Contains(page.RenderedHTML, "Safe &amp; sound") || page.Template != stages.LandingTemplate {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestDeployIsStablePerExperiment(t *testing.T) {
	prior := map[string]stage.Payload{stage.NameLandingPage: stage.LandingPage{Headline: "h"}}
	d := &stages.Deploy{}
	in := stage.Input{Experiment: store.Experiment{ID: 3, Title: "Shift Swap Board"}, Prior: prior}

	first, err := d.Invoke(context.Background(), in)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	second, _ := d.Invoke(context.Background(), in)
	a, b := first.Payload.(stage.Deployment), second.Payload.(stage.Deployment)
	if a.DeploymentID != b.DeploymentID {
		t.Fatalf("deployment ids differ: %s vs %s", a.DeploymentID, b.DeploymentID)
	}
	if a.URL != "https://shift-swap-board-3.pages.dev" {
		t.Fatalf("unexpected url %q", a.URL)
	}

	in.Experiment.ID = 4
	other, _ := d.Invoke(context.Background(), in)
	if other.Payload.(stage.Deployment).DeploymentID == a.DeploymentID {
		t.Fatal("distinct experiments must get distinct deployments")
	}
}

func TestEvaluateThresholds(t *testing.T) {
	thresholds := config.Default().Monitor
	cases := []struct {
		name         string
		metrics      stage.MetricsSnapshot
		want         stage.Decision
		insufficient bool
	}{
		{"too few visitors", stage.MetricsSnapshot{UniqueVisitors: 10, EmailSignupRate: 50}, stage.DecisionIterate, true},
		{"go", stage.MetricsSnapshot{UniqueVisitors: 500, EmailSignupRate: 12, BounceRate: 40}, stage.DecisionGo, false},
		{"low signups", stage.MetricsSnapshot{UniqueVisitors: 500, EmailSignupRate: 1, BounceRate: 40}, stage.DecisionNoGo, false},
		{"high bounce", stage.MetricsSnapshot{UniqueVisitors: 500, EmailSignupRate: 12, BounceRate: 95}, stage.DecisionNoGo, false},
		{"in between", stage.MetricsSnapshot{UniqueVisitors: 500, EmailSignupRate: 5, BounceRate: 40}, stage.DecisionIterate, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := stages.Evaluate(tc.metrics, thresholds)
			if report.Decision != tc.want || report.InsufficientData != tc.insufficient {
				t.Fatalf("got %q insufficient=%v: %s", report.Decision, report.InsufficientData, report.Reasoning)
			}
		})
	}
}

func TestMonitorClassifiesSourceErrors(t *testing.T) {
	prior := map[string]stage.Payload{stage.NameAnalyticsSetup: stage.AnalyticsSetup{WebsiteID: "w"}}
	m := &stages.Monitor{
		Thresholds: config.Default().Monitor,
		Source: stages.MetricsFunc(func(context.Context, string, int64) (stage.MetricsSnapshot, int, error) {
			return stage.MetricsSnapshot{}, 0, errors.New("connection reset")
		}),
	}
	_, err := m.Invoke(context.Background(), stage.Input{Stage: stage.NameMonitor, Prior: prior})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
