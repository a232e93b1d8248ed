package api

import (
	"time"

	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
)

// SubmitRequest is the body of POST /api/videos.
type SubmitRequest struct {
	Prompt    string `json:"prompt"`
	Quality   string `json:"quality,omitempty"`
	SceneName string `json:"scene_name,omitempty"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobView is a job record plus the download link for its finished video.
type JobView struct {
	jobstore.Job
	VideoURL string `json:"video_url,omitempty"`
}

// JobListResponse is the body of GET /api/jobs.
type JobListResponse struct {
	Jobs  []JobView `json:"jobs"`
	Total int       `json:"total"`
}

// EventListResponse is the body of GET /api/jobs/{id}/events.
type EventListResponse struct {
	Events []ledger.Event `json:"events"`
}

// JobCounts aggregates jobs per lifecycle bucket.
type JobCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string       `json:"status"`
	Jobs      JobCounts    `json:"jobs"`
	Checks    []CheckState `json:"checks,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// CheckState reports one dependency's readiness.
type CheckState struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse carries an error message for non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
