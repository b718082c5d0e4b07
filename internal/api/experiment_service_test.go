package api_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"verdandi/internal/api"
	"verdandi/internal/stage"
	"verdandi/internal/stages"
	"verdandi/internal/store"
	"verdandi/internal/testsupport"
	"verdandi/internal/workflow"
)

func TestDescribeIncludesStagesAndEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reg, err := stages.NewRegistry(cfg, stages.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	ctx := context.Background()
	exp := testsupport.NewExperiment(t, st, "Invoice Chaser")
	if _, err := st.SaveStageResult(ctx, store.StageResult{
		ExperimentID: exp.ID,
		StageName:    stage.NameIdeaDiscovery,
		StageOrder:   0,
		Attempts:     1,
		Payload:      json.RawMessage(`{"title":"Invoice Chaser"}`),
	}); err != nil {
		t.Fatalf("SaveStageResult: %v", err)
	}
	if err := st.AdvanceStage(ctx, exp.ID, 0); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if err := st.AppendEvent(ctx, store.Event{ExperimentID: exp.ID, Type: workflow.EventDiscovered, StageName: stage.NameIdeaDiscovery}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	svc := api.NewExperimentService(st, reg)
	got, err := svc.Describe(ctx, exp.ID, true)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got == nil || got.StageName != stage.NameIdeaDiscovery || got.Status != "pending" {
		t.Fatalf("unexpected experiment: %+v", got)
	}
	if len(got.Stages) != 1 || got.Stages[0].Status != string(store.ResultSuccess) {
		t.Fatalf("unexpected stages: %+v", got.Stages)
	}
	if len(got.Events) != 1 || got.Events[0].Type != workflow.EventDiscovered {
		t.Fatalf("unexpected events: %+v", got.Events)
	}

	withoutEvents, err := svc.Describe(ctx, exp.ID, false)
	if err != nil || len(withoutEvents.Events) != 0 {
		t.Fatalf("events must be omitted when not requested: %+v (%v)", withoutEvents, err)
	}
	missing, err := svc.Describe(ctx, 999, false)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing experiment, got %+v (%v)", missing, err)
	}

	list, err := svc.List(ctx, store.StatusPending)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %+v (%v)", list, err)
	}
}

func TestFromExperimentReview(t *testing.T) {
	reviewed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := api.FromExperiment(&store.Experiment{
		ID:             4,
		Title:          "Invoice Chaser",
		Status:         store.StatusApproved,
		CurrentStage:   4,
		ReviewDecision: store.ReviewApproved,
		ReviewedBy:     "ana",
		ReviewedAt:     reviewed,
	}, nil)
	if got.Review == nil || got.Review.Decision != "approved" || got.Review.ReviewedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected review: %+v", got.Review)
	}
	if got.NeedsReview || got.StageName != "" || got.CreatedAt != "" {
		t.Fatalf("unexpected conversion: %+v", got)
	}

	pending := api.FromExperiment(&store.Experiment{Status: store.StatusAwaitingReview}, nil)
	if !pending.NeedsReview || pending.Review != nil {
		t.Fatalf("awaiting review conversion wrong: %+v", pending)
	}
}
