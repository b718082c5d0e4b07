package testsupport

import (
	"context"
	"testing"

	"verdandi/internal/config"
	"verdandi/internal/store"
	"verdandi/internal/textutil"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewExperiment creates a pending experiment for tests using the provided store.
// The topic key is derived from the title the way discovery derives it.
func NewExperiment(t testing.TB, st *store.Store, title string) *store.Experiment {
	t.Helper()

	exp, err := st.CreateExperiment(context.Background(), store.NewExperiment{Title: title, TopicKey: textutil.NormalizeTopicKey(title)})
	if err != nil {
		t.Fatalf("store.CreateExperiment: %v", err)
	}
	return exp
}
