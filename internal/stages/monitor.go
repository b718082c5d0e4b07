package stages

import (
	"context"
	"errors"
	"fmt"

	"verdandi/internal/config"
	"verdandi/internal/services"
	"verdandi/internal/stage"
)

// MetricsSource reports the traffic collected for a deployed experiment.
type MetricsSource interface {
	Snapshot(ctx context.Context, websiteID string, experimentID int64) (stage.MetricsSnapshot, int, error)
}

// MetricsFunc adapts a function into a MetricsSource.
type MetricsFunc func(ctx context.Context, websiteID string, experimentID int64) (stage.MetricsSnapshot, int, error)

// Snapshot implements MetricsSource.
func (f MetricsFunc) Snapshot(ctx context.Context, websiteID string, experimentID int64) (stage.MetricsSnapshot, int, error) {
	return f(ctx, websiteID, experimentID)
}

// SampleMetrics returns a fixed week of healthy traffic.
type SampleMetrics struct{}

// Snapshot implements MetricsSource.
func (SampleMetrics) Snapshot(context.Context, string, int64) (stage.MetricsSnapshot, int, error) {
	return stage.MetricsSnapshot{
		Visitors:        347,
		UniqueVisitors:  312,
		Pageviews:       489,
		BounceRate:      58.2,
		CTAClicks:       52,
		EmailSignups:    38,
		EmailSignupRate: 12.2,
	}, 7, nil
}

var (
	iterateSuggestions = []string{
		"Test alternative headlines",
		"Add more social proof",
		"Try different CTA copy",
	}
	goNextSteps = []string{
		"Send follow-up email to signups asking about WTP",
		"Add pricing page for A/B test",
	}
)

// Monitor evaluates collected metrics against the validation thresholds.
type Monitor struct {
	Thresholds config.Monitor
	Source     MetricsSource
}

// Invoke implements stage.Handler.
func (m *Monitor) Invoke(ctx context.Context, in stage.Input) (stage.Output, error) {
	setup, err := stage.RequirePrior[stage.AnalyticsSetup](in)
	if err != nil {
		return stage.Output{}, err
	}
	metrics, days, err := m.Source.Snapshot(ctx, setup.WebsiteID, in.Experiment.ID)
	if err != nil {
		if services.IsTransient(err) && !errors.Is(err, services.ErrTransient) {
			err = services.Wrap(services.ErrTransient, in.Stage, "collect metrics", "metrics source unavailable", err)
		}
		return stage.Output{}, err
	}

	report := Evaluate(metrics, m.Thresholds)
	report.DaysMonitored = days
	return stage.Output{Payload: report, Decision: report.Decision}, nil
}

// HealthCheck implements stage.Handler.
func (m *Monitor) HealthCheck(context.Context) stage.Health {
	if m.Source == nil {
		return stage.Unhealthy(stage.NameMonitor, "no metrics source configured")
	}
	return stage.Healthy(stage.NameMonitor)
}

// Evaluate applies the validation thresholds. Rates are percentages. Too little traffic yields
// ITERATE with InsufficientData set so the experiment is extended rather
// than judged.
func Evaluate(metrics stage.MetricsSnapshot, t config.Monitor) stage.ValidationReport {
	report := stage.ValidationReport{Metrics: metrics}
	signup := metrics.EmailSignupRate
	bounce := metrics.BounceRate

	switch {
	case metrics.UniqueVisitors < t.MinVisitors:
		report.Decision = stage.DecisionIterate
		report.InsufficientData = true
		report.Reasoning = fmt.Sprintf("Only %d unique visitors, need at least %d", metrics.UniqueVisitors, t.MinVisitors)
		report.IterateSuggestions = []string{"Extend the monitoring window", "Increase distribution reach"}
	case signup >= t.EmailSignupGo && bounce <= t.BounceRateMax:
		report.Decision = stage.DecisionGo
		report.Reasoning = fmt.Sprintf("Signup rate %.1f%% meets the %.1f%% target with bounce rate %.1f%%",
			signup, t.EmailSignupGo, bounce)
		report.NextSteps = goNextSteps
	case signup < t.EmailSignupNoGo || bounce > t.BounceRateMax:
		report.Decision = stage.DecisionNoGo
		report.Reasoning = fmt.Sprintf("Signup rate %.1f%% (floor %.1f%%), bounce rate %.1f%% (max %.1f%%)",
			signup, t.EmailSignupNoGo, bounce, t.BounceRateMax)
	default:
		report.Decision = stage.DecisionIterate
		report.Reasoning = fmt.Sprintf("Signup rate %.1f%% is between the no-go floor and the go target", signup)
		report.IterateSuggestions = iterateSuggestions
	}
	return report
}
