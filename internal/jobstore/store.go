package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"scenesmith/internal/config"
)

// Store persists one JSON document per job under the jobs directory. Writes go
// through a temp file and an atomic rename so readers observe either the old or
// the new record, never a torn one. An in-memory index mirrors the directory
// and is invalidated by every write.
type Store struct {
	dir  string
	lock *flock.Flock

	mu    sync.RWMutex
	cache map[string]*Job
}

var jobIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Open prepares the jobs directory and loads the existing records. The store
// holds an advisory lock for its lifetime; a second opener receives ErrLocked.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("jobstore requires configuration")
	}
	dir := cfg.JobsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	store := &Store{dir: dir, lock: lock, cache: make(map[string]*Job)}
	if err := store.reload(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Close releases the store lock.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Dir returns the backing jobs directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read jobs directory: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Job, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := readJobFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			// A malformed record is skipped rather than wedging the daemon.
			continue
		}
		s.cache[job.ID] = job
	}
	return nil
}

// NewJob creates and persists a pending job.
func (s *Store) NewJob(ctx context.Context, prompt string, quality Quality, sceneName string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt must not be empty")
	}
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Quality:   quality,
		SceneName: strings.TrimSpace(sceneName),
		Status:    StatusPending,
		Progress:  Progress{Stage: "pending", Message: "queued", Percentage: 0},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(job); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Get returns a copy of the job with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	job, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return job.Clone(), nil
	}

	path, err := s.jobPath(id)
	if err != nil {
		return nil, ErrNotFound
	}
	job, err = readJobFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.mu.Lock()
	s.cache[job.ID] = job
	s.mu.Unlock()
	return job.Clone(), nil
}

// Update persists the job record. The caller must be the single writer for the
// job; concurrent updates to distinct jobs are independent. Updating a job that
// exists in neither the cache nor the directory returns ErrNotFound so a
// deleted record cannot be resurrected by a racing writer.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job == nil {
		return errors.New("job must not be nil")
	}
	s.mu.RLock()
	_, exists := s.cache[job.ID]
	s.mu.RUnlock()
	if !exists {
		path, err := s.jobPath(job.ID)
		if err != nil {
			return ErrNotFound
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return ErrNotFound
			}
			return fmt.Errorf("stat job %s: %w", job.ID, err)
		}
	}
	return s.write(job)
}

// List returns up to limit jobs ordered by most recent update. A limit of 0
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	jobs := make([]*Job, 0, len(s.cache))
	for _, job := range s.cache {
		jobs = append(jobs, job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Delete removes the job record. Deleting an absent job returns ErrNotFound so
// duplicate deletes surface as 404 at the API boundary.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.jobPath(id)
	if err != nil {
		return ErrNotFound
	}

	s.mu.Lock()
	_, cached := s.cache[id]
	delete(s.cache, id)
	s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if cached {
				return nil
			}
			return ErrNotFound
		}
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// ClaimPending atomically selects the oldest pending job and moves it into
// generating_code so exactly one worker owns it.
func (s *Store) ClaimPending(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *Job
	for _, job := range s.cache {
		if job.Status != StatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	claimed := oldest.Clone()
	now := time.Now().UTC()
	claimed.Status = StatusGeneratingCode
	claimed.StartedAt = &now
	claimed.LastHeartbeat = &now
	claimed.Progress = Progress{Stage: "generating_code", Message: "generating scene code", Percentage: 10}
	if err := s.writeLocked(claimed); err != nil {
		return nil, err
	}
	return claimed.Clone(), nil
}

// Heartbeat refreshes the liveness marker on an in-flight job.
func (s *Store) Heartbeat(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsProcessing() {
		return nil
	}
	now := time.Now().UTC()
	job.LastHeartbeat = &now
	return s.Update(ctx, job)
}

// ReclaimStale fails processing jobs whose heartbeat went silent for longer
// than timeout, covering worker crashes and daemon restarts. It returns the
// reclaimed jobs.
func (s *Store) ReclaimStale(ctx context.Context, timeout time.Duration) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-timeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	var reclaimed []*Job
	for _, job := range s.cache {
		if !IsProcessingStatus(job.Status) {
			continue
		}
		if job.LastHeartbeat != nil && job.LastHeartbeat.After(cutoff) {
			continue
		}
		stale := job.Clone()
		stale.SetFailed(fmt.Sprintf("internal: stage %s abandoned (no heartbeat)", stale.Status))
		if err := s.writeLocked(stale); err != nil {
			return reclaimed, err
		}
		reclaimed = append(reclaimed, stale.Clone())
	}
	return reclaimed, nil
}

// Health aggregates job counts for the health endpoint.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	if err := ctx.Err(); err != nil {
		return HealthSummary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := HealthSummary{Total: len(s.cache)}
	for _, job := range s.cache {
		switch {
		case job.Status == StatusPending:
			summary.Pending++
		case job.IsProcessing():
			summary.Processing++
		case job.Status == StatusCompleted:
			summary.Completed++
		case job.Status == StatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Store) write(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(job)
}

func (s *Store) writeLocked(job *Job) error {
	path, err := s.jobPath(job.ID)
	if err != nil {
		return err
	}
	record := job.Clone()
	record.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".job-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename record for %s: %w", job.ID, err)
	}

	s.cache[record.ID] = record
	job.UpdatedAt = record.UpdatedAt
	return nil
}

func (s *Store) jobPath(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if !jobIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid job id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func readJobFile(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job record %s: %w", filepath.Base(path), err)
	}
	if job.ID == "" {
		return nil, fmt.Errorf("job record %s missing id", filepath.Base(path))
	}
	return &job, nil
}
