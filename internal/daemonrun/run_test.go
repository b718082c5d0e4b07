package daemonrun

import (
	"os"
	"path/filepath"
	"testing"

	"verdandi/internal/logging"
	"verdandi/internal/testsupport"
)

func TestServicesAssemblesRegistry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	svc, err := Services(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("Services: %v", err)
	}
	if svc.Registry == nil || svc.Registry.Len() != 10 {
		t.Fatalf("expected full stage registry, got %+v", svc.Registry)
	}
	if svc.Archiver != nil {
		t.Fatal("archive is disabled by default")
	}

	cfg.Archive.Enabled = true
	svc, err = Services(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("Services with archive: %v", err)
	}
	if svc.Archiver == nil {
		t.Fatal("expected archiver when enabled")
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "verdandi-1.log")
	second := filepath.Join(dir, "verdandi-2.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(p), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "worker.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != second {
		t.Fatalf("pointer should follow the newest log, got %q", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) < 2 {
		t.Fatalf("unexpected pid file %q (%v)", data, err)
	}
}
