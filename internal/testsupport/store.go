package testsupport

import (
	"context"
	"testing"

	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
)

// MustOpenStore opens a jobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending job for tests using the provided store.
func NewJob(t testing.TB, store *jobstore.Store, prompt string, quality jobstore.Quality) *jobstore.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), prompt, quality, "")
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
