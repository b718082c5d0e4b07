package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"verdandi/internal/archive"
	"verdandi/internal/config"
	"verdandi/internal/logging"
	"verdandi/internal/notifications"
	"verdandi/internal/resilience"
	"verdandi/internal/stage"
	"verdandi/internal/stages"
	"verdandi/internal/store"
	"verdandi/internal/testsupport"
	"verdandi/internal/workflow"
)

type harness struct {
	cfg      *config.Config
	store    *store.Store
	recorder *notifications.Recorder
	archive  afero.Fs
	svc      workflow.Services
}

func newHarness(t *testing.T, opts stages.Options, cfgOpts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	st := testsupport.MustOpenStore(t, cfg)
	reg, err := stages.NewRegistry(cfg, opts)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	logger := logging.NewNop()
	breakers := resilience.NewRegistry(cfg.Breaker, resilience.WithSink(st), resilience.WithLogger(logger))
	guard := resilience.NewGuard(resilience.PolicyFromConfig(cfg.Retry), breakers, logger,
		resilience.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	fs := afero.NewMemMapFs()
	recorder := &notifications.Recorder{}
	return &harness{
		cfg:      cfg,
		store:    st,
		recorder: recorder,
		archive:  fs,
		svc: workflow.Services{
			Config:   cfg,
			Store:    st,
			Registry: reg,
			Guard:    guard,
			Notifier: recorder,
			Archiver: archive.NewWithSink(st, &archive.FilesystemSink{FS: fs, Root: "/archive"}, "experiments", logger),
			Logger:   logger,
		},
	}
}

func (h *harness) orchestrator(t *testing.T) *workflow.Orchestrator {
	t.Helper()
	orch, err := workflow.NewOrchestrator(h.svc)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

func (h *harness) experiment(t *testing.T, id int64) *store.Experiment {
	t.Helper()
	exp, err := h.store.GetExperiment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	return exp
}

func (h *harness) eventTypes(t *testing.T, id int64) []string {
	t.Helper()
	events, err := h.store.ListEvents(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func (h *harness) published(event notifications.Event) int {
	n := 0
	for _, rec := range h.recorder.Events() {
		if rec.Event == event {
			n++
		}
	}
	return n
}

func catalogueOf(t *testing.T, titles ...string) []stage.IdeaCandidate {
	t.Helper()
	var out []stage.IdeaCandidate
	for _, title := range titles {
		found := false
		for _, idea := range stages.DefaultCatalogue() {
			if idea.Title == title {
				out = append(out, idea)
				found = true
			}
		}
		if !found {
			t.Fatalf("catalogue has no idea %q", title)
		}
	}
	return out
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
