package daemon_test

import (
	"context"
	"strings"
	"testing"

	"verdandi/internal/daemon"
	"verdandi/internal/stages"
	"verdandi/internal/store"
	"verdandi/internal/testsupport"
	"verdandi/internal/workflow"
)

func newDaemon(t *testing.T, st *store.Store, cfgOpts ...testsupport.ConfigOption) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	if st == nil {
		st = testsupport.MustOpenStore(t, cfg)
	}
	reg, err := stages.NewRegistry(cfg, stages.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	pool, err := workflow.NewPool(workflow.Services{Config: cfg, Store: st, Registry: reg})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	d, err := daemon.New(cfg, st, reg, nil, pool)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Pool.Running {
		t.Fatalf("expected daemon to report running, got %+v", status)
	}
	if !strings.HasSuffix(status.LockFilePath, "worker-test-worker.lock") {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockIsPerWorkerID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg, err := stages.NewRegistry(cfg, stages.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	build := func() *daemon.Daemon {
		pool, err := workflow.NewPool(workflow.Services{Config: cfg, Store: st, Registry: reg})
		if err != nil {
			t.Fatalf("NewPool: %v", err)
		}
		d, err := daemon.New(cfg, st, reg, nil, pool)
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		return d
	}
	ctx := context.Background()
	first, second := build(), build()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()
	if err := second.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		second.Stop()
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
