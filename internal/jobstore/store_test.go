package jobstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scenesmith/internal/jobstore"
	"scenesmith/internal/testsupport"
)

func TestNewJobRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job, err := store.NewJob(ctx, "Explain bubble sort in 30 seconds", jobstore.QualityLow, "")
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	if job.ID == "" || len(job.ID) != 36 {
		t.Fatalf("expected hyphenated hex id, got %q", job.ID)
	}
	if job.Status != jobstore.StatusPending {
		t.Fatalf("expected pending status, got %s", job.Status)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Prompt != job.Prompt || got.Quality != jobstore.QualityLow {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// The record must exist as its own JSON file.
	path := filepath.Join(store.Dir(), job.ID+".json")
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected job file on disk: %v", err)
	}
	if !strings.Contains(string(body), job.ID) {
		t.Fatalf("job file missing id: %s", body)
	}
}

func TestNewJobRejectsEmptyPrompt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.NewJob(context.Background(), "   ", jobstore.QualityMedium, ""); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestUpdateThenGetReturnsPostUpdateRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "Draw a circle", jobstore.QualityMedium)
	job.Status = jobstore.StatusRendering
	job.SetProgress("rendering", "rendering scene", 30)
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != jobstore.StatusRendering {
		t.Fatalf("expected rendering, got %s", got.Status)
	}
	if got.Progress.Percentage != 30 {
		t.Fatalf("expected 30%%, got %v", got.Progress.Percentage)
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.Get(context.Background(), "6f1f9b2c-3d28-4a67-9f5d-0b6c8be3f001")
	if !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotentAtNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "Delete me", jobstore.QualityLow)
	if err := store.Delete(ctx, job.ID); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := store.Delete(ctx, job.ID); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on duplicate delete, got %v", err)
	}
	if _, err := store.Get(ctx, job.ID); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpdateAfterDeleteDoesNotResurrectRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "short lived", jobstore.QualityLow)
	if err := store.Delete(ctx, job.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	job.Status = jobstore.StatusRendering
	if err := store.Update(ctx, job); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted job, got %v", err)
	}
	path := filepath.Join(store.Dir(), job.ID+".json")
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("deleted record reappeared on disk: %v", err)
	}
}

func TestListOrdersByMostRecentUpdate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewJob(t, store, "first", jobstore.QualityLow)
	second := testsupport.NewJob(t, store, "second", jobstore.QualityLow)

	time.Sleep(5 * time.Millisecond)
	first.SetProgress("rendering", "touched", 30)
	first.Status = jobstore.StatusRendering
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	jobs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID {
		t.Fatalf("expected most recently updated first, got %s", jobs[0].ID)
	}
	if jobs[1].ID != second.ID {
		t.Fatalf("expected older job second, got %s", jobs[1].ID)
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 job, got %d", len(limited))
	}
}

func TestClaimPendingTakesOldestAndMarksProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewJob(t, store, "first", jobstore.QualityLow)
	testsupport.NewJob(t, store, "second", jobstore.QualityLow)

	claimed, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed job")
	}
	if claimed.ID != first.ID {
		t.Fatalf("expected oldest pending job, got %s", claimed.ID)
	}
	if claimed.Status != jobstore.StatusGeneratingCode {
		t.Fatalf("expected generating_code, got %s", claimed.Status)
	}
	if claimed.StartedAt == nil || claimed.LastHeartbeat == nil {
		t.Fatal("expected started_at and heartbeat to be set")
	}

	// Second claim picks the remaining pending job; third finds nothing.
	if next, err := store.ClaimPending(ctx); err != nil || next == nil {
		t.Fatalf("expected second claim, got %v %v", next, err)
	}
	if none, err := store.ClaimPending(ctx); err != nil || none != nil {
		t.Fatalf("expected empty claim, got %v %v", none, err)
	}
}

func TestReclaimStaleFailsSilentJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "stuck", jobstore.QualityLow)
	claimed, err := store.ClaimPending(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim failed: %v", err)
	}
	stale := time.Now().UTC().Add(-time.Hour)
	claimed.LastHeartbeat = &stale
	if err := store.Update(ctx, claimed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reclaimed, err := store.ReclaimStale(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if len(reclaimed) != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", len(reclaimed))
	}
	got, err := store.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != jobstore.StatusFailed {
		t.Fatalf("expected failed after reclaim, got %s", got.Status)
	}
	if got.Error == "" {
		t.Fatal("expected reclaim error message")
	}
}

func TestHealthCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "claimed", jobstore.QualityLow)
	active, _ := store.ClaimPending(ctx)
	if active == nil {
		t.Fatal("expected claim")
	}
	testsupport.NewJob(t, store, "queued", jobstore.QualityLow)
	done := testsupport.NewJob(t, store, "done", jobstore.QualityLow)
	done.SetCompleted(filepath.Join(t.TempDir(), "out.mp4"))
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	bad := testsupport.NewJob(t, store, "bad", jobstore.QualityLow)
	bad.SetFailed("render-failed: boom")
	if err := store.Update(ctx, bad); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 4 || health.Pending != 1 || health.Processing != 1 || health.Completed != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}

func TestReopenReloadsRecordsFromDisk(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	job, err := store.NewJob(context.Background(), "persisted", jobstore.QualityHigh, "CustomScene")
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.SceneName != "CustomScene" || got.Quality != jobstore.QualityHigh {
		t.Fatalf("unexpected record after reopen: %+v", got)
	}
}
