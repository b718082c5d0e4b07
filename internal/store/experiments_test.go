package store_test

import (
	"context"
	"errors"
	"testing"

	"verdandi/internal/store"
	"verdandi/internal/testsupport"
)

func TestCreateAndGetExperiment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	exp, err := st.CreateExperiment(ctx, store.NewExperiment{Title: "  Invoice Chaser ", Summary: "reminders", TopicKey: "invoice-chaser"})
	if err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	if exp.ID == 0 || exp.Status != store.StatusPending || exp.CurrentStage != -1 {
		t.Fatalf("unexpected experiment: %+v", exp)
	}
	if exp.Title != "Invoice Chaser" {
		t.Fatalf("expected trimmed title, got %q", exp.Title)
	}

	fetched, err := st.GetExperiment(ctx, exp.ID)
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	if fetched.TopicKey != "invoice-chaser" || fetched.CreatedAt.IsZero() {
		t.Fatalf("unexpected fetched experiment: %+v", fetched)
	}

	if _, err := st.GetExperiment(ctx, exp.ID+100); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.CreateExperiment(ctx, store.NewExperiment{Title: " "}); err == nil {
		t.Fatal("expected blank title to be rejected")
	}
}

func TestTransitionStatusCompareAndSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	exp := testsupport.NewExperiment(t, st, "Compare and set")

	if err := st.TransitionStatus(ctx, exp.ID, store.StatusPending, store.StatusRunning, store.TransitionOptions{WorkerID: "w1"}); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	// A second writer still believing the experiment is pending loses.
	err := st.TransitionStatus(ctx, exp.ID, store.StatusPending, store.StatusRunning, store.TransitionOptions{})
	if !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	if err := st.TransitionStatus(ctx, exp.ID, store.StatusRunning, store.StatusPending, store.TransitionOptions{}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := st.TransitionStatus(ctx, exp.ID, store.StatusRunning, store.StatusFailed, store.TransitionOptions{ErrorMessage: "boom"}); err != nil {
		t.Fatalf("running -> failed: %v", err)
	}
	fetched, _ := st.GetExperiment(ctx, exp.ID)
	if fetched.Status != store.StatusFailed || fetched.ErrorMessage != "boom" || fetched.WorkerID != "w1" {
		t.Fatalf("unexpected experiment after failure: %+v", fetched)
	}
}

func TestAdvanceStageIsMonotonic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	exp := testsupport.NewExperiment(t, st, "Monotonic")

	for _, order := range []int{0, 3, 1} {
		if err := st.AdvanceStage(ctx, exp.ID, order); err != nil {
			t.Fatalf("AdvanceStage(%d): %v", order, err)
		}
	}
	fetched, _ := st.GetExperiment(ctx, exp.ID)
	if fetched.CurrentStage != 3 {
		t.Fatalf("expected current stage 3, got %d", fetched.CurrentStage)
	}
}

func TestRecordReview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	exp := testsupport.NewExperiment(t, st, "Review me")

	if _, err := st.RecordReview(ctx, exp.ID, store.Review{Approved: true}); !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected conflict for experiment not awaiting review, got %v", err)
	}

	mustTransition(t, st, exp.ID, store.StatusPending, store.StatusRunning)
	mustTransition(t, st, exp.ID, store.StatusRunning, store.StatusAwaitingReview)

	reviewed, err := st.RecordReview(ctx, exp.ID, store.Review{Approved: true, Reviewer: "ana", Notes: "ship it"})
	if err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	if reviewed.Status != store.StatusApproved || reviewed.ReviewDecision != store.ReviewApproved {
		t.Fatalf("unexpected review state: %+v", reviewed)
	}
	if reviewed.ReviewedBy != "ana" || reviewed.ReviewNotes != "ship it" || reviewed.ReviewedAt.IsZero() {
		t.Fatalf("review metadata not recorded: %+v", reviewed)
	}
}

func TestArchiveFromAnyStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	exp := testsupport.NewExperiment(t, st, "Archive me")
	mustTransition(t, st, exp.ID, store.StatusPending, store.StatusRunning)

	prev, err := st.ArchiveExperiment(ctx, exp.ID)
	if err != nil {
		t.Fatalf("ArchiveExperiment: %v", err)
	}
	if prev != store.StatusRunning {
		t.Fatalf("expected previous status running, got %s", prev)
	}
	if _, err := st.ArchiveExperiment(ctx, exp.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected second archive to be rejected, got %v", err)
	}

	archived, err := st.ListExperiments(ctx, store.StatusArchived)
	if err != nil {
		t.Fatalf("ListExperiments: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != exp.ID {
		t.Fatalf("unexpected archived list: %+v", archived)
	}
}

func TestCanTransitionGraph(t *testing.T) {
	allowed := []struct{ from, to store.Status }{
		{store.StatusPending, store.StatusRunning},
		{store.StatusRunning, store.StatusRunning},
		{store.StatusRunning, store.StatusAwaitingReview},
		{store.StatusAwaitingReview, store.StatusApproved},
		{store.StatusAwaitingReview, store.StatusRejected},
		{store.StatusApproved, store.StatusRunning},
		{store.StatusFailed, store.StatusRunning},
		{store.StatusCompleted, store.StatusArchived},
	}
	for _, tc := range allowed {
		if !store.CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to store.Status }{
		{store.StatusPending, store.StatusCompleted},
		{store.StatusRejected, store.StatusRunning},
		{store.StatusNoGo, store.StatusRunning},
		{store.StatusCompleted, store.StatusRunning},
		{store.StatusArchived, store.StatusArchived},
		{store.StatusAwaitingReview, store.StatusRunning},
	}
	for _, tc := range denied {
		if store.CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func mustTransition(t *testing.T, st *store.Store, id int64, from, to store.Status) {
	t.Helper()
	if err := st.TransitionStatus(context.Background(), id, from, to, store.TransitionOptions{}); err != nil {
		t.Fatalf("transition %s -> %s: %v", from, to, err)
	}
}
