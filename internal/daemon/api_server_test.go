package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"verdandi/internal/api"
	"verdandi/internal/config"
	"verdandi/internal/stages"
	"verdandi/internal/testsupport"
	"verdandi/internal/workflow"
)

func newTestAPIServer(t *testing.T, token string) *apiServer {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Worker.APIBind = "127.0.0.1:0"
	cfg.Worker.APIToken = token
	st := testsupport.MustOpenStore(t, cfg)
	reg, err := stages.NewRegistry(cfg, stages.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	pool, err := workflow.NewPool(workflow.Services{Config: cfg, Store: st, Registry: reg})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	d, err := New(cfg, st, reg, nil, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.api == nil {
		t.Fatal("expected api server when api_bind is set")
	}
	testsupport.NewExperiment(t, st, "Invoice Chaser")
	return d.api
}

func TestAPIServerHandleExperiments(t *testing.T) {
	srv := newTestAPIServer(t, "")

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/experiments?status=pending", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var list api.ExperimentListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Experiments) != 1 || list.Experiments[0].Title != "Invoice Chaser" {
		t.Fatalf("unexpected experiments: %+v", list.Experiments)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/experiments/1", http.StatusOK},
		{"/api/experiments/abc", http.StatusBadRequest},
		{"/api/experiments/404", http.StatusNotFound},
		{"/api/experiments/1/stages", http.StatusNotFound},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		srv.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.code, w.Code)
		}
	}
}

func TestAPIServerStatusRequiresToken(t *testing.T) {
	srv := newTestAPIServer(t, "secret")

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	var status api.WorkerStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.WorkerID != "test-worker" || status.Running || len(status.StageHealth) != 10 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Experiments["pending"] != 1 {
		t.Fatalf("unexpected counts: %+v", status.Experiments)
	}

	w = httptest.NewRecorder()
	post := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	post.Header.Set("Authorization", "Bearer secret")
	srv.routes().ServeHTTP(w, post)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := config.Default()
	if srv := newAPIServer(&cfg, &Daemon{}, nil); srv != nil {
		t.Fatal("expected nil server without api_bind")
	}
	var srv *apiServer
	if err := srv.start(context.Background()); err != nil {
		t.Fatalf("nil server start: %v", err)
	}
	srv.stop()
}
