package stages

import (
	"verdandi/internal/config"
	"verdandi/internal/stage"
)

// Dependency names guarded by circuit breakers.
const (
	DependencyLLM       = "llm"
	DependencySearch    = "search"
	DependencyHosting   = "hosting"
	DependencyAnalytics = "analytics"
	DependencySocial    = "social"
)

// Options replaces individual reference handlers or their inputs.
type Options struct {
	Catalogue []stage.IdeaCandidate
	Metrics   MetricsSource
	Overrides map[string]stage.Handler
}

// Descriptors returns the canonical ten-stage pipeline.
func Descriptors(cfg *config.Config, opts Options) []stage.Descriptor {
	catalogue := opts.Catalogue
	if len(catalogue) == 0 {
		catalogue = DefaultCatalogue()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = SampleMetrics{}
	}

	descs := []stage.Descriptor{
		{Name: stage.NameIdeaDiscovery, Order: 0, Dependency: DependencyLLM, Handler: &IdeaDiscovery{Catalogue: catalogue}},
		{Name: stage.NameDeepResearch, Order: 1, Dependency: DependencySearch, Handler: &Research{}},
		{Name: stage.NameScoring, Order: 2, Dependency: DependencyLLM, Gate: stage.GateScoring, Handler: &Scoring{Threshold: cfg.Pipeline.ScoreGoThreshold}},
		{Name: stage.NameMVPDefinition, Order: 3, Dependency: DependencyLLM, Handler: &MVP{}},
		{Name: stage.NameLandingPage, Order: 4, Dependency: DependencyLLM, Handler: &Landing{}},
		{Name: stage.NameHumanReview, Order: 5, Gate: stage.GateReview, Handler: &Review{}},
		{Name: stage.NameDeploy, Order: 6, Dependency: DependencyHosting, Handler: &Deploy{}},
		{Name: stage.NameAnalyticsSetup, Order: 7, Dependency: DependencyAnalytics, Handler: &Analytics{}},
		{Name: stage.NameDistribution, Order: 8, Dependency: DependencySocial, Handler: &Distribution{}},
		{Name: stage.NameMonitor, Order: 9, Dependency: DependencyAnalytics, Gate: stage.GateMonitor, Handler: &Monitor{Thresholds: cfg.Monitor, Source: metrics}},
	}
	for i := range descs {
		if h, ok := opts.Overrides[descs[i].Name]; ok && h != nil {
			descs[i].Handler = h
		}
	}
	return descs
}

// NewRegistry builds the validated stage registry.
func NewRegistry(cfg *config.Config, opts Options) (*stage.Registry, error) {
	return stage.NewRegistry(Descriptors(cfg, opts)...)
}
