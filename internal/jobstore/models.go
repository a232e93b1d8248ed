package jobstore

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending        Status = "pending"
	StatusGeneratingCode Status = "generating_code"
	StatusRendering      Status = "rendering"
	StatusVerifying      Status = "verifying"
	StatusRepairing      Status = "repairing"
	StatusRerendering    Status = "rerendering"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusGeneratingCode,
	StatusRendering,
	StatusVerifying,
	StatusRepairing,
	StatusRerendering,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusGeneratingCode: {},
	StatusRendering:      {},
	StatusVerifying:      {},
	StatusRepairing:      {},
	StatusRerendering:    {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status admits no further transitions.
func IsTerminalStatus(status Status) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Quality selects one of the renderer resolution/frame-rate presets.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// ParseQuality converts a string into a known Quality. Empty input maps to medium.
func ParseQuality(value string) (Quality, bool) {
	normalized := Quality(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case "":
		return QualityMedium, true
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return normalized, true
	default:
		return "", false
	}
}

// Progress reports where a job is within its current stage.
type Progress struct {
	Stage      string  `json:"stage"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
}

// IssueReport describes one visual problem detected on a sampled frame.
type IssueReport struct {
	FrameIndex   int    `json:"frame_index"`
	Severity     string `json:"severity"`
	Kind         string `json:"kind"`
	Description  string `json:"description"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

// Issue severity levels.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Issue kinds recognized by the visual analyzer.
const (
	IssueOverlap      = "overlap"
	IssueCrowding     = "crowding"
	IssueOffFrame     = "off-frame"
	IssueIllegible    = "illegible"
	IssueStaleElement = "stale-element"
	IssueOther        = "other"
)

// AutoFixRecord captures the outcome of one automatic repair round.
type AutoFixRecord struct {
	Applied       bool   `json:"applied"`
	IssuesBefore  int    `json:"issues_before"`
	IssuesAfter   int    `json:"issues_after"`
	QualityBefore string `json:"quality_before"`
	QualityAfter  string `json:"quality_after"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// VisualAnalysis is attached to a job after a verification pass.
type VisualAnalysis struct {
	FramesAnalyzed   int            `json:"frames_analyzed"`
	TotalAnimations  int            `json:"total_animations"`
	ExtractionMethod string         `json:"extraction_method"`
	Issues           []IssueReport  `json:"issues"`
	OverallQuality   string         `json:"overall_quality"`
	AutoFix          *AutoFixRecord `json:"auto_fix,omitempty"`
}

// Overall quality grades.
const (
	QualityGradeGood       = "good"
	QualityGradeAcceptable = "acceptable"
	QualityGradePoor       = "poor"
)

// Job is the durable record driven through the pipeline. The store is the sole
// source of truth; the API adapter only reads it.
type Job struct {
	ID              string          `json:"id"`
	Prompt          string          `json:"prompt"`
	Quality         Quality         `json:"quality"`
	SceneName       string          `json:"scene_name"`
	Status          Status          `json:"status"`
	Progress        Progress        `json:"progress"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	SourcePath      string          `json:"source_path,omitempty"`
	VideoPath       string          `json:"video_path,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Error           string          `json:"error,omitempty"`
	VisualAnalysis  *VisualAnalysis `json:"visual_analysis,omitempty"`
	Attempts        int             `json:"attempts"`
	LastHeartbeat   *time.Time      `json:"last_heartbeat,omitempty"`
}

// IsProcessing returns true when the job is in an in-flight stage.
func (j Job) IsProcessing() bool {
	return IsProcessingStatus(j.Status)
}

// IsTerminal returns true when the job reached a final state.
func (j Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// SetProgress updates all three progress fields together. Percentages never
// move backwards within a stage sequence.
func (j *Job) SetProgress(stage, message string, percent float64) {
	if percent < j.Progress.Percentage && !IsTerminalStatus(j.Status) {
		percent = j.Progress.Percentage
	}
	j.Progress = Progress{Stage: stage, Message: message, Percentage: percent}
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.Error = message
	j.VideoPath = ""
	j.FinishedAt = &now
	j.LastHeartbeat = nil
	j.Progress.Stage = "failed"
	j.Progress.Message = message
}

// SetCancelled marks the job as cancelled.
func (j *Job) SetCancelled() {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.FinishedAt = &now
	j.LastHeartbeat = nil
	j.Progress.Stage = "cancelled"
	j.Progress.Message = "cancelled by request"
}

// SetCompleted marks the job as completed with its accepted video artifact.
func (j *Job) SetCompleted(videoPath string) {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.VideoPath = videoPath
	j.Error = ""
	j.FinishedAt = &now
	j.LastHeartbeat = nil
	j.Progress = Progress{Stage: "completed", Message: "video ready", Percentage: 100}
}

// Clone returns a deep copy so callers can mutate without racing the store cache.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	if j.LastHeartbeat != nil {
		t := *j.LastHeartbeat
		cp.LastHeartbeat = &t
	}
	if j.VisualAnalysis != nil {
		va := *j.VisualAnalysis
		va.Issues = append([]IssueReport(nil), j.VisualAnalysis.Issues...)
		if j.VisualAnalysis.AutoFix != nil {
			af := *j.VisualAnalysis.AutoFix
			va.AutoFix = &af
		}
		cp.VisualAnalysis = &va
	}
	return &cp
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
