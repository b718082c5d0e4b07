package workflow

import (
	"context"
	"errors"
	"testing"

	"verdandi/internal/stages"
	"verdandi/internal/store"
	"verdandi/internal/testsupport"
)

func TestDispatchRefusesInflightExperiment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reg, err := stages.NewRegistry(cfg, stages.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	pool, err := NewPool(Services{Config: cfg, Store: st, Registry: reg})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	pool.inflight[42] = 0

	err = pool.dispatch(context.Background(), &store.Job{ID: 1, Kind: store.JobRun, ExperimentID: 42}, 1)
	if !errors.Is(err, ErrAlreadyInflight) {
		t.Fatalf("expected ErrAlreadyInflight, got %v", err)
	}
	if pool.inflight[42] != 0 {
		t.Fatalf("refused dispatch must not take over the slot")
	}
}

func TestRunJobRejectsMalformedParams(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reg, err := stages.NewRegistry(cfg, stages.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	pool, err := NewPool(Services{Config: cfg, Store: st, Registry: reg})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	for _, job := range []*store.Job{
		{Kind: store.JobRun, ExperimentID: 1, Params: []byte("{")},
		{Kind: store.JobDiscover, Params: []byte("[")},
		{Kind: store.JobKind("reindex")},
	} {
		if err := pool.runJob(context.Background(), job); err == nil {
			t.Fatalf("expected error for job %+v", job)
		}
	}
}
