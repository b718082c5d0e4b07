package services_test

import (
	"context"
	"testing"

	"verdandi/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithExperimentID(ctx, 42)
	ctx = services.WithStage(ctx, "scoring")
	ctx = services.WithAttempt(ctx, 2)
	ctx = services.WithWorkerID(ctx, "host-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ExperimentIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected experiment id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "scoring" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if attempt, ok := services.AttemptFromContext(ctx); !ok || attempt != 2 {
		t.Fatalf("unexpected attempt: %v %v", attempt, ok)
	}
	if worker, ok := services.WorkerIDFromContext(ctx); !ok || worker != "host-1" {
		t.Fatalf("unexpected worker: %v %v", worker, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithAttempt(ctx, 0)
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.AttemptFromContext(ctx); ok {
		t.Fatal("expected no attempt value")
	}
	if _, ok := services.ExperimentIDFromContext(ctx); ok {
		t.Fatal("expected no experiment id")
	}
}
