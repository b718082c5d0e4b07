package stage

import (
	"encoding/json"
	"fmt"

	"verdandi/internal/services"
)

// Payload is the closed set of stage outputs. Each concrete type belongs to
// exactly one stage.
type Payload interface {
	StageName() string
	payload()
}

// PainPoint is one user problem surfaced during discovery.
type PainPoint struct {
	Description string `json:"description"`
	Severity    int    `json:"severity"`
	Frequency   string `json:"frequency"`
	Source      string `json:"source"`
}

// IdeaCandidate is the output of idea discovery.
type IdeaCandidate struct {
	Title            string      `json:"title"`
	OneLiner         string      `json:"one_liner"`
	ProblemStatement string      `json:"problem_statement"`
	TargetAudience   string      `json:"target_audience"`
	Category         string      `json:"category"`
	PainPoints       []PainPoint `json:"pain_points,omitempty"`
}

// Competitor is an existing product in the researched market.
type Competitor struct {
	Name       string   `json:"name"`
	URL        string   `json:"url,omitempty"`
	Pricing    string   `json:"pricing,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

// ResearchReport is the output of deep research.
type ResearchReport struct {
	TAMEstimate      string       `json:"tam_estimate"`
	MarketGrowth     string       `json:"market_growth"`
	DemandSignals    []string     `json:"demand_signals,omitempty"`
	Competitors      []Competitor `json:"competitors,omitempty"`
	CompetitorGaps   []string     `json:"competitor_gaps,omitempty"`
	WillingnessToPay string       `json:"willingness_to_pay"`
	KeyFindings      []string     `json:"key_findings,omitempty"`
	Summary          string       `json:"summary"`
}

// ScoreComponent is one weighted criterion of the pre-build score.
type ScoreComponent struct {
	Name      string  `json:"name"`
	Score     int     `json:"score"`
	Weight    float64 `json:"weight"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// PreBuildScore is the output of the scoring gate.
type PreBuildScore struct {
	Components    []ScoreComponent `json:"components"`
	TotalScore    int              `json:"total_score"`
	Threshold     float64          `json:"threshold"`
	Decision      Decision         `json:"decision"`
	Reasoning     string           `json:"reasoning"`
	Risks         []string         `json:"risks,omitempty"`
	Opportunities []string         `json:"opportunities,omitempty"`
}

// Feature is one product capability promised on the landing page.
type Feature struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// MVPDefinition is the output of MVP definition.
type MVPDefinition struct {
	ProductName       string    `json:"product_name"`
	Tagline           string    `json:"tagline"`
	ValueProposition  string    `json:"value_proposition"`
	TargetPersona     string    `json:"target_persona"`
	Features          []Feature `json:"features"`
	PricingModel      string    `json:"pricing_model"`
	CTAText           string    `json:"cta_text"`
	DomainSuggestions []string  `json:"domain_suggestions,omitempty"`
}

// FAQItem is one question on the landing page.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LandingPage is the output of landing page generation.
type LandingPage struct {
	Headline        string    `json:"headline"`
	Subheadline     string    `json:"subheadline"`
	CTAText         string    `json:"cta_text"`
	FAQ             []FAQItem `json:"faq,omitempty"`
	PageTitle       string    `json:"page_title"`
	MetaDescription string    `json:"meta_description"`
	Template        string    `json:"template"`
	RenderedHTML    string    `json:"rendered_html"`
}

// ReviewOutcome is the output of the human review gate.
type ReviewOutcome struct {
	Approved bool   `json:"approved"`
	Skipped  bool   `json:"skipped"`
	Reviewer string `json:"reviewer,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Reason   string `json:"reason"`
}

// Deployment is the output of the deploy stage.
type Deployment struct {
	Domain       string `json:"domain"`
	ProjectName  string `json:"project_name"`
	URL          string `json:"url"`
	DeploymentID string `json:"deployment_id"`
	SSLActive    bool   `json:"ssl_active"`
}

// AnalyticsSetup is the output of analytics setup.
type AnalyticsSetup struct {
	WebsiteID         string `json:"website_id"`
	TrackingScriptURL string `json:"tracking_script_url"`
	DashboardURL      string `json:"dashboard_url"`
	Injected          bool   `json:"injected"`
}

// SocialPost is one distribution post.
type SocialPost struct {
	Platform string `json:"platform"`
	Content  string `json:"content"`
	URL      string `json:"url,omitempty"`
	Posted   bool   `json:"posted"`
}

// DistributionReport is the output of distribution.
type DistributionReport struct {
	Posts                  []SocialPost `json:"posts,omitempty"`
	SitemapURL             string       `json:"sitemap_url,omitempty"`
	SearchConsoleSubmitted bool         `json:"search_console_submitted"`
	ReachEstimate          int          `json:"reach_estimate"`
}

// MetricsSnapshot is the traffic observed on a landing page.
type MetricsSnapshot struct {
	Visitors        int     `json:"visitors"`
	UniqueVisitors  int     `json:"unique_visitors"`
	Pageviews       int     `json:"pageviews"`
	BounceRate      float64 `json:"bounce_rate"`
	CTAClicks       int     `json:"cta_clicks"`
	EmailSignups    int     `json:"email_signups"`
	EmailSignupRate float64 `json:"email_signup_rate"`
}

// ValidationReport is the output of the monitor gate.
type ValidationReport struct {
	Metrics            MetricsSnapshot `json:"metrics"`
	Decision           Decision        `json:"decision"`
	InsufficientData   bool            `json:"insufficient_data"`
	Reasoning          string          `json:"reasoning"`
	DaysMonitored      int             `json:"days_monitored"`
	IterateSuggestions []string        `json:"iterate_suggestions,omitempty"`
	NextSteps          []string        `json:"next_steps,omitempty"`
}

func (IdeaCandidate) StageName() string { return NameIdeaDiscovery }
func (ResearchReport) StageName() string { return NameDeepResearch }
func (PreBuildScore) StageName() string { return NameScoring }
func (MVPDefinition) StageName() string { return NameMVPDefinition }
func (LandingPage) StageName() string { return NameLandingPage }
func (ReviewOutcome) StageName() string { return NameHumanReview }
func (Deployment) StageName() string { return NameDeploy }
func (AnalyticsSetup) StageName() string { return NameAnalyticsSetup }
func (DistributionReport) StageName() string { return NameDistribution }
func (ValidationReport) StageName() string { return NameMonitor }

func (IdeaCandidate) payload() {}
func (ResearchReport) payload() {}
func (PreBuildScore) payload() {}
func (MVPDefinition) payload() {}
func (LandingPage) payload() {}
func (ReviewOutcome) payload() {}
func (Deployment) payload() {}
func (AnalyticsSetup) payload() {}
func (DistributionReport) payload() {}
func (ValidationReport) payload() {}

// Encode serializes a payload for persistence.
func Encode(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.StageName(), err)
	}
	return data, nil
}

// Decode restores the payload persisted for stageName. Malformed data is a
// services.ErrValidation error.
func Decode(stageName string, data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var err error
	switch stageName {
	case NameIdeaDiscovery:
		var p IdeaCandidate
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameDeepResearch:
		var p ResearchReport
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameScoring:
		var p PreBuildScore
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameMVPDefinition:
		var p MVPDefinition
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameLandingPage:
		var p LandingPage
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameHumanReview:
		var p ReviewOutcome
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameDeploy:
		var p Deployment
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameAnalyticsSetup:
		var p AnalyticsSetup
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameDistribution:
		var p DistributionReport
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	case NameMonitor:
		var p ValidationReport
		if err = json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	default:
		return nil, services.Wrap(services.ErrValidation, stageName, "decode payload", "unknown stage", nil)
	}
	return nil, services.Wrap(services.ErrValidation, stageName, "decode payload",
		"stored result is malformed; rerun the stage", err)
}

// PriorResult returns the earlier stage payload of type T from the input.
func PriorResult[T Payload](in Input) (T, bool) {
	var zero T
	for _, p := range in.Prior {
		if typed, ok := p.(T); ok {
			return typed, true
		}
	}
	return zero, false
}

// RequirePrior is PriorResult for stages that cannot run without the earlier
// result; a missing result is a permanent validation error.
func RequirePrior[T Payload](in Input) (T, error) {
	p, ok := PriorResult[T](in)
	if !ok {
		return p, services.Wrap(services.ErrValidation, in.Stage, "load prior result",
			fmt.Sprintf("missing %s result", p.StageName()), nil)
	}
	return p, nil
}
