package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scenesmith/internal/jobstore"
	"scenesmith/internal/logging"
	"scenesmith/internal/services"
)

const finalizeTimeout = 10 * time.Second

// Start launches the worker pool and the stale-job reclaim loop. It returns
// immediately; Stop blocks until all workers drain.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow manager already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	reclaimed, err := m.store.ReclaimStale(runCtx, m.staleTimeout)
	if err != nil {
		cancel()
		return fmt.Errorf("reclaim stale jobs: %w", err)
	}
	for _, job := range reclaimed {
		m.logger.Warn("reclaimed abandoned job",
			logging.String(logging.FieldJobID, job.ID),
			logging.String("error", job.Error))
		m.recordTransition(runCtx, job.ID, "", jobstore.StatusFailed, job.Error)
	}

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go func(workerID int) {
			defer m.wg.Done()
			m.workerLoop(runCtx, workerID)
		}(i)
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reclaimLoop(runCtx)
	}()

	m.logger.Info("workflow manager started",
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval))
	return nil
}

// Stop cancels all workers and waits for in-flight jobs to finalize.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.running = false
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

func (m *Manager) workerLoop(ctx context.Context, workerID int) {
	logger := m.logger.With(logging.Int("worker", workerID))
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		job, err := m.store.ClaimPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim pending job failed", logging.Error(err))
		}
		if job != nil {
			m.recordTransition(ctx, job.ID, jobstore.StatusPending, jobstore.StatusGeneratingCode, "claimed")
			m.processJob(ctx, job, logger)
			// Drain the queue before going back to sleep.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(m.staleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		reclaimed, err := m.store.ReclaimStale(ctx, m.staleTimeout)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Error("stale job reclaim failed", logging.Error(err))
			}
			continue
		}
		for _, job := range reclaimed {
			m.logger.Warn("reclaimed abandoned job",
				logging.String(logging.FieldJobID, job.ID),
				logging.String("error", job.Error))
			m.recordTransition(ctx, job.ID, "", jobstore.StatusFailed, job.Error)
		}
	}
}

// processJob owns one claimed job until it reaches a terminal state.
func (m *Manager) processJob(ctx context.Context, job *jobstore.Job, logger *slog.Logger) {
	jobCtx, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)

	m.mu.Lock()
	m.active[job.ID] = cancelCause
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.active, job.ID)
		m.mu.Unlock()
	}()

	runCtx, cancelTimeout := context.WithTimeout(jobCtx, m.jobWallClock)
	defer cancelTimeout()

	stopBeat := m.startHeartbeat(runCtx, job.ID)
	err := m.pipeline.Process(runCtx, job)
	stopBeat()

	if err == nil {
		m.notifyCompleted(job)
		return
	}
	m.finalize(jobCtx, job, err, logger)
}

// finalize maps a pipeline error to the terminal job state. The job context is
// likely dead at this point, so persistence uses a fresh deadline.
func (m *Manager) finalize(jobCtx context.Context, job *jobstore.Job, runErr error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	from := job.Status
	cause := context.Cause(jobCtx)
	kind := services.ErrorKind(runErr)

	switch {
	case errors.Is(cause, services.ErrCancelled):
		job.SetCancelled()
		logger.Info("job cancelled", logging.String(logging.FieldJobID, job.ID))
	case kind == "timeout":
		job.SetFailed(fmt.Sprintf("timeout: job exceeded the %s wall clock", m.jobWallClock))
		logger.Warn("job timed out",
			logging.String(logging.FieldJobID, job.ID),
			logging.Duration("wall_clock", m.jobWallClock))
	default:
		job.SetFailed(fmt.Sprintf("%s: %v", kind, runErr))
		logger.Error("job failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.String("kind", kind),
			logging.Error(runErr))
	}

	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("persist terminal state failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		return
	}
	m.recordTransition(ctx, job.ID, from, job.Status, job.Error)

	if job.Status == jobstore.StatusFailed && m.notifier != nil {
		if err := m.notifier.NotifyJobFailed(ctx, job.ID, job.Prompt, job.Error); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) notifyCompleted(job *jobstore.Job) {
	if m.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	duration := time.Duration(0)
	if job.StartedAt != nil && job.FinishedAt != nil {
		duration = job.FinishedAt.Sub(*job.StartedAt)
	}
	if err := m.notifier.NotifyJobCompleted(ctx, job.ID, job.Prompt, job.VideoPath, duration); err != nil {
		m.logger.Warn("completion notification failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}

// startHeartbeat refreshes the job's liveness marker until the returned stop
// function is called or the context ends.
func (m *Manager) startHeartbeat(ctx context.Context, jobID string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(m.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.store.Heartbeat(ctx, jobID); err != nil && ctx.Err() == nil {
					m.logger.Warn("heartbeat failed",
						logging.String(logging.FieldJobID, jobID),
						logging.Error(err))
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
