package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"verdandi/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "verdandi")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "verdandi.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Store.Driver != config.StoreSQLite {
		t.Fatalf("expected sqlite driver by default, got %q", cfg.Store.Driver)
	}
	if !cfg.Pipeline.RequireHumanReview {
		t.Fatal("expected human review to be required by default")
	}
	if cfg.Worker.ID == "" {
		t.Fatal("expected default worker id")
	}
	if cfg.Coordination.ReservationTTL() != 24*time.Hour {
		t.Fatalf("unexpected reservation ttl: %s", cfg.Coordination.ReservationTTL())
	}
	if cfg.Coordination.HeartbeatInterval() > 6*time.Hour {
		t.Fatalf("heartbeat interval too long: %s", cfg.Coordination.HeartbeatInterval())
	}
	if cfg.Coordination.FingerprintThreshold != 0.6 {
		t.Fatalf("unexpected fingerprint threshold: %v", cfg.Coordination.FingerprintThreshold)
	}
	if cfg.Retry.BaseDelay() != time.Second {
		t.Fatalf("unexpected base delay: %s", cfg.Retry.BaseDelay())
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	payload := struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Worker struct {
			ID       string `toml:"id"`
			PoolSize int    `toml:"pool_size"`
		} `toml:"worker"`
		Pipeline struct {
			RequireHumanReview bool `toml:"require_human_review"`
		} `toml:"pipeline"`
		Logging struct {
			Format string `toml:"format"`
			Level  string `toml:"level"`
		} `toml:"logging"`
	}{}
	payload.Paths.DataDir = "~/state"
	payload.Worker.ID = "worker-a"
	payload.Worker.PoolSize = 5
	payload.Pipeline.RequireHumanReview = false
	payload.Logging.Format = "JSON"
	payload.Logging.Level = "WARNING"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Worker.ID != "worker-a" || cfg.Worker.PoolSize != 5 {
		t.Fatalf("unexpected worker section: %+v", cfg.Worker)
	}
	if cfg.Pipeline.RequireHumanReview {
		t.Fatal("expected review to be disabled")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected logging normalization: %+v", cfg.Logging)
	}
	if !strings.HasSuffix(cfg.LockPath(), "worker-worker-a.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[pipeline]\nstop_everything = true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("VERDANDI_DATABASE_URL", "")
	cfg := config.Default()
	cfg.Store.Driver = config.StorePostgres
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing dsn to fail validation")
	}
	cfg.Store.DSN = "postgres://verdandi@localhost/verdandi"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected dsn to satisfy validation: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"pool size":          func(c *config.Config) { c.Worker.PoolSize = 0 },
		"heartbeat ordering": func(c *config.Config) { c.Worker.HeartbeatTimeout = c.Worker.HeartbeatInterval },
		"retry attempts":     func(c *config.Config) { c.Retry.MaxAttempts = 0 },
		"breaker threshold":  func(c *config.Config) { c.Breaker.FailureThreshold = 0 },
		"fingerprint":        func(c *config.Config) { c.Coordination.FingerprintThreshold = 1.5 },
		"reservation ttl":    func(c *config.Config) { c.Coordination.HeartbeatIntervalHours = 24 },
		"semantic":           func(c *config.Config) { c.Coordination.Semantic = "bert" },
		"monitor rates":      func(c *config.Config) { c.Monitor.EmailSignupGo = 1 },
		"score threshold":    func(c *config.Config) { c.Pipeline.ScoreGoThreshold = 120 },
		"archive bucket": func(c *config.Config) {
			c.Archive.Enabled = true
			c.Archive.Backend = config.ArchiveMinio
			c.Archive.Endpoint = "minio:9000"
		},
	}
	for name, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Retry.MaxAttempts != config.Default().Retry.MaxAttempts {
		t.Fatalf("sample drifted from defaults: %+v", cfg.Retry)
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Store.DSN = "postgres://user:pw@db/verdandi"
	cfg.Archive.SecretKey = "s3cr3t"

	red := cfg.Redacted()
	if red.Store.DSN != "********" || red.Archive.SecretKey != "********" {
		t.Fatalf("expected secrets masked, got %+v / %+v", red.Store, red.Archive)
	}
	if red.Worker.APIToken != "" {
		t.Fatalf("empty token should stay empty, got %q", red.Worker.APIToken)
	}
	if cfg.Store.DSN == "********" {
		t.Fatal("Redacted must not modify the receiver")
	}
}
