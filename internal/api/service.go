package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/services"
)

const maxPromptLength = 4000

// JobService answers API requests from the job store and the event ledger.
type JobService struct {
	store    *jobstore.Store
	eventLog *ledger.Ledger
}

// NewJobService wires the read/submit service. The ledger may be nil.
func NewJobService(store *jobstore.Store, eventLog *ledger.Ledger) *JobService {
	return &JobService{store: store, eventLog: eventLog}
}

// Submit validates a request and enqueues a pending job.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*jobstore.Job, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrInputInvalid, "api", "submit", "prompt is required", nil)
	}
	if len(prompt) > maxPromptLength {
		return nil, services.Wrap(services.ErrInputInvalid, "api", "submit",
			fmt.Sprintf("prompt exceeds %d characters", maxPromptLength), nil)
	}
	quality, ok := jobstore.ParseQuality(req.Quality)
	if !ok {
		return nil, services.Wrap(services.ErrInputInvalid, "api", "submit",
			fmt.Sprintf("unknown quality %q", req.Quality), nil)
	}
	return s.store.NewJob(ctx, prompt, quality, req.SceneName)
}

// Describe returns one job as an API view.
func (s *JobService) Describe(ctx context.Context, id string) (*JobView, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := ViewOf(job)
	return &view, nil
}

// List returns the most recently updated jobs, capped by limit (0 means all).
func (s *JobService) List(ctx context.Context, limit int) (JobListResponse, error) {
	jobs, err := s.store.List(ctx, limit)
	if err != nil {
		return JobListResponse{}, err
	}
	total := len(jobs)
	if limit > 0 {
		// The grand total counts every stored job, not just the page.
		all, err := s.store.List(ctx, 0)
		if err != nil {
			return JobListResponse{}, err
		}
		total = len(all)
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, ViewOf(job))
	}
	return JobListResponse{Jobs: views, Total: total}, nil
}

// Events returns the ledger history for one job.
func (s *JobService) Events(ctx context.Context, id string) (EventListResponse, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return EventListResponse{}, err
	}
	if s.eventLog == nil {
		return EventListResponse{}, nil
	}
	events, err := s.eventLog.Events(ctx, id)
	if err != nil {
		return EventListResponse{}, err
	}
	return EventListResponse{Events: events}, nil
}

// Health aggregates job counts for the health endpoint.
func (s *JobService) Health(ctx context.Context) (HealthResponse, error) {
	summary, err := s.store.Health(ctx)
	if err != nil {
		return HealthResponse{}, err
	}
	return HealthResponse{
		Status: "ok",
		Jobs: JobCounts{
			Total:      summary.Total,
			Pending:    summary.Pending,
			Processing: summary.Processing,
			Completed:  summary.Completed,
			Failed:     summary.Failed,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// ViewOf decorates a job with its video download link once completed.
func ViewOf(job *jobstore.Job) JobView {
	view := JobView{Job: *job.Clone()}
	if job.Status == jobstore.StatusCompleted && job.VideoPath != "" {
		view.VideoURL = "/api/videos/" + job.ID
	}
	return view
}
