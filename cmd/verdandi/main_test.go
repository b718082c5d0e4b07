package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"verdandi/internal/api"
	"verdandi/internal/config"
	"verdandi/internal/store"
	"verdandi/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, extra string) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\n\n[worker]\nid = %q\n\n[retry]\nbase_delay_ms = 1\nmax_delay_ms = 5\n%s",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Worker.ID,
		extra,
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e *cliTestEnv) experiment(t *testing.T, id int64) *store.Experiment {
	t.Helper()
	st := testsupport.MustOpenStore(t, e.cfg)
	exp, err := st.GetExperiment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	return exp
}

func TestCLIDiscoverRunReviewLifecycle(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, err := runCLI(t, env.configPath, "discover", "--count", "1")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if !strings.Contains(out, "Invoice Chaser") || !strings.Contains(out, "Created 1") {
		t.Fatalf("unexpected discover output:\n%s", out)
	}

	out, err = runCLI(t, env.configPath, "run", "1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "awaiting_review") || !strings.Contains(out, "verdandi review 1") {
		t.Fatalf("expected review pause, got:\n%s", out)
	}

	out, err = runCLI(t, env.configPath, "review", "1", "--approve", "--reviewer", "ana", "--notes", "ship it", "--resume")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !strings.Contains(out, "Experiment 1 approved") || !strings.Contains(out, "Queued run job") {
		t.Fatalf("unexpected review output:\n%s", out)
	}

	out, err = runCLI(t, env.configPath, "jobs", "--status", "queued")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "run") || !strings.Contains(out, "queued") {
		t.Fatalf("expected queued run job, got:\n%s", out)
	}

	out, err = runCLI(t, env.configPath, "run", "1")
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if !strings.Contains(out, "Experiment 1: completed") || !strings.Contains(out, "monitor") {
		t.Fatalf("expected completion, got:\n%s", out)
	}

	exp := env.experiment(t, 1)
	if exp.Status != store.StatusCompleted || exp.ReviewedBy != "ana" || exp.ReviewNotes != "ship it" {
		t.Fatalf("unexpected experiment state: %+v", exp)
	}
}

func TestCLIRunStopAfterByNumber(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, err := runCLI(t, env.configPath, "discover"); err != nil {
		t.Fatalf("discover: %v", err)
	}

	out, err := runCLI(t, env.configPath, "run", "1", "--stop-after", "2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Stopped after scoring") {
		t.Fatalf("expected stop after scoring, got:\n%s", out)
	}
	if exp := env.experiment(t, 1); exp.CurrentStage != 2 || exp.Status != store.StatusRunning {
		t.Fatalf("expected running at stage 2, got %s at %d", exp.Status, exp.CurrentStage)
	}

	if _, err := runCLI(t, env.configPath, "run", "1", "--stop-after", "42"); err == nil {
		t.Fatal("expected error for unknown stage number")
	}
}

func TestCLIRunEnqueue(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, err := runCLI(t, env.configPath, "discover"); err != nil {
		t.Fatalf("discover: %v", err)
	}

	out, err := runCLI(t, env.configPath, "run", "1", "--enqueue")
	if err != nil {
		t.Fatalf("run --enqueue: %v", err)
	}
	if !strings.Contains(out, "Queued run job") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	out, err = runCLI(t, env.configPath, "run", "1", "--enqueue")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if !strings.Contains(out, "already has queued job") {
		t.Fatalf("expected dedupe message, got:\n%s", out)
	}

	if _, err := runCLI(t, env.configPath, "run", "99", "--enqueue"); err == nil {
		t.Fatal("expected error for missing experiment")
	}
}

func TestCLIListAndShow(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, err := runCLI(t, env.configPath, "discover", "-n", "2"); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if _, err := runCLI(t, env.configPath, "run", "1", "--stop-after", "deep_research"); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, err := runCLI(t, env.configPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"Invoice Chaser", "Standup Digest", "Deep Research"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, env.configPath, "list", "--status", "pending", "--json")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var listed api.ExperimentListResponse
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(listed.Experiments) != 1 || listed.Experiments[0].Title != "Standup Digest" {
		t.Fatalf("unexpected pending experiments: %+v", listed.Experiments)
	}

	out, err = runCLI(t, env.configPath, "show", "1", "--events")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Experiment 1: Invoice Chaser", "Idea Discovery", "stage_completed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, env.configPath, "show", "1", "--json")
	if err != nil {
		t.Fatalf("show --json: %v", err)
	}
	var shown api.ExperimentResponse
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode show: %v", err)
	}
	if len(shown.Experiment.Stages) != 2 || shown.Experiment.ReservationKey == "" {
		t.Fatalf("unexpected experiment detail: %+v", shown.Experiment)
	}

	if _, err := runCLI(t, env.configPath, "show", "42"); err == nil {
		t.Fatal("expected error for missing experiment")
	}
	if _, err := runCLI(t, env.configPath, "list", "--status", "bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestCLIArchiveReleasesTopicAndWritesSnapshot(t *testing.T) {
	archiveDir := filepath.Join(t.TempDir(), "snapshots")
	env := setupCLITestEnv(t, fmt.Sprintf("\n[archive]\nenabled = true\ndir = %q\n", archiveDir))
	if _, err := runCLI(t, env.configPath, "discover"); err != nil {
		t.Fatalf("discover: %v", err)
	}

	out, err := runCLI(t, env.configPath, "archive", "1")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.Contains(out, "archived (was pending)") || !strings.Contains(out, "Released topic invoice-chaser") {
		t.Fatalf("unexpected archive output:\n%s", out)
	}
	matches, err := filepath.Glob(filepath.Join(archiveDir, "*", "000001-invoice-chaser.yaml"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected snapshot under %s, got %v (%v)", archiveDir, matches, err)
	}

	out, err = runCLI(t, env.configPath, "reservations")
	if err != nil {
		t.Fatalf("reservations: %v", err)
	}
	if !strings.Contains(out, "No reservations") {
		t.Fatalf("expected no active reservations, got:\n%s", out)
	}

	if _, err := runCLI(t, env.configPath, "archive", "1"); err == nil || !strings.Contains(err.Error(), "already archived") {
		t.Fatalf("expected already archived error, got %v", err)
	}
}

func TestCLIReviewRequiresPendingReview(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, err := runCLI(t, env.configPath, "discover"); err != nil {
		t.Fatalf("discover: %v", err)
	}

	if _, err := runCLI(t, env.configPath, "review", "1"); err == nil {
		t.Fatal("expected error without --approve or --reject")
	}
	_, err := runCLI(t, env.configPath, "review", "1", "--reject")
	if err == nil || !strings.Contains(err.Error(), "not awaiting review") {
		t.Fatalf("expected not awaiting review error, got %v", err)
	}
	if _, err := runCLI(t, env.configPath, "review", "abc", "--approve"); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestCLICheckAndBreakers(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, err := runCLI(t, env.configPath, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "checks passed") || strings.Contains(out, "[FAIL]") {
		t.Fatalf("unexpected check output:\n%s", out)
	}

	out, err = runCLI(t, env.configPath, "breakers")
	if err != nil {
		t.Fatalf("breakers: %v", err)
	}
	if !strings.Contains(out, "No breaker state recorded") {
		t.Fatalf("unexpected breakers output:\n%s", out)
	}

	out, err = runCLI(t, env.configPath, "notify", "test")
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	if !strings.Contains(out, "not configured") {
		t.Fatalf("unexpected notify output:\n%s", out)
	}
}

func TestCLIConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "verdandi", "config.toml")

	out, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected init output:\n%s", out)
	}
	if _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config exists")
	}

	env := setupCLITestEnv(t, "")
	out, err = runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "test-worker") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}

	bad := filepath.Join(env.baseDir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[worker]\nunknown_key = 1\n"), 0o644); err != nil {
		t.Fatalf("write bad config: %v", err)
	}
	if _, err := runCLI(t, bad, "list"); err == nil {
		t.Fatal("expected error for unknown config key")
	}
}

func TestCLILogsShowsTail(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, err := runCLI(t, env.configPath, "logs")
	if err != nil {
		t.Fatalf("logs without file: %v", err)
	}
	if !strings.Contains(out, "No log output") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(env.cfg.Paths.LogDir, "worker.log")
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = runCLI(t, env.configPath, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected tail %q", out)
	}
}

func TestCLIConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t, "\n[archive]\nsecret_key = \"hunter2\"\n")

	out, err := runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "hunter2") || !strings.Contains(out, "********") {
		t.Fatalf("expected masked secret, got:\n%s", out)
	}
	if !strings.Contains(out, "test-worker") {
		t.Fatalf("expected effective worker id, got:\n%s", out)
	}

	out, err = runCLI(t, "", "config", "init", "--stdout")
	if err != nil {
		t.Fatalf("config init --stdout: %v", err)
	}
	if !strings.Contains(out, "[worker]") {
		t.Fatalf("expected sample config, got:\n%s", out)
	}
}
