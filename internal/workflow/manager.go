package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/logging"
	"scenesmith/internal/notifications"
	"scenesmith/internal/services"
	"scenesmith/internal/stage"
)

// Manager runs the worker pool. Each worker claims one pending job at a time
// and drives it through the pipeline; the manager owns cancellation, stale
// reclaim, and heartbeats.
type Manager struct {
	cfg      *config.Config
	store    *jobstore.Store
	eventLog *ledger.Ledger
	pipeline *Pipeline
	notifier notifications.Service
	checkers []stage.Checker
	logger   *slog.Logger

	workers        int
	pollInterval   time.Duration
	heartbeatEvery time.Duration
	staleTimeout   time.Duration
	jobWallClock   time.Duration

	mu      sync.Mutex
	active  map[string]context.CancelCauseFunc
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewManager builds a manager around an assembled pipeline. Checkers feed the
// daemon health endpoint and may be nil.
func NewManager(
	cfg *config.Config,
	store *jobstore.Store,
	eventLog *ledger.Ledger,
	pipeline *Pipeline,
	notifier notifications.Service,
	checkers []stage.Checker,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:            cfg,
		store:          store,
		eventLog:       eventLog,
		pipeline:       pipeline,
		notifier:       notifier,
		checkers:       checkers,
		logger:         logger,
		workers:        cfg.Workflow.Workers,
		pollInterval:   time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeatEvery: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		staleTimeout:   time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
		jobWallClock:   time.Duration(cfg.Workflow.JobWallClockMinutes) * time.Minute,
		active:         make(map[string]context.CancelCauseFunc),
	}
}

// Cancel stops a job. Pending jobs are cancelled in place; in-flight jobs get
// their worker context cancelled and the worker records the terminal state.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	switch {
	case job.Status == jobstore.StatusPending:
		job.SetCancelled()
		if err := m.store.Update(ctx, job); err != nil {
			return err
		}
		m.recordTransition(ctx, job.ID, jobstore.StatusPending, jobstore.StatusCancelled, "cancelled before start")
		return nil
	case job.IsProcessing():
		m.mu.Lock()
		cancel, ok := m.active[jobID]
		m.mu.Unlock()
		if !ok {
			// Claimed by a previous daemon run; the stale reclaim will fail it.
			return fmt.Errorf("job %s is processing but has no active worker", jobID)
		}
		cancel(services.ErrCancelled)
		return nil
	default:
		return fmt.Errorf("job %s is already %s: %w", jobID, job.Status, services.ErrInputInvalid)
	}
}

// Health reports readiness of the store and every registered dependency.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	results := make([]stage.Health, 0, len(m.checkers)+1)
	if _, err := m.store.Health(ctx); err != nil {
		results = append(results, stage.Unhealthy("jobstore", err.Error()))
	} else {
		results = append(results, stage.Healthy("jobstore"))
	}
	for _, checker := range m.checkers {
		results = append(results, checker.HealthCheck(ctx))
	}
	return results
}

// ActiveJobs returns the IDs of jobs currently owned by a worker.
func (m *Manager) ActiveJobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) recordTransition(ctx context.Context, jobID string, from, to jobstore.Status, detail string) {
	if m.eventLog == nil {
		return
	}
	if err := m.eventLog.Record(ctx, jobID, "status_change", string(from), string(to), detail); err != nil {
		m.logger.Warn("ledger record failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
	}
}
