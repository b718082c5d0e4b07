package testsupport

import (
	"path/filepath"
	"testing"

	"verdandi/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays are shrunk so failure paths run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Archive.Dir = filepath.Join(base, "archive")
	cfgVal.Worker.ID = "test-worker"
	cfgVal.Retry.BaseDelayMS = 1
	cfgVal.Retry.MaxDelayMS = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithReviewRequired toggles the human review gate.
func WithReviewRequired(required bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.RequireHumanReview = required
	}
}

// WithWorkerID overrides the worker identity.
func WithWorkerID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.ID = id
	}
}

// WithRetryAttempts overrides the per-stage attempt budget.
func WithRetryAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxAttempts = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
