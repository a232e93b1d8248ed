package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/logging"
)

const (
	defaultRetention     = 24 * time.Hour
	defaultSweepInterval = 15 * time.Minute
)

// Cleaner removes job artifacts and sweeps expired terminal jobs.
type Cleaner struct {
	store     *jobstore.Store
	ledger    *ledger.Ledger
	scenesDir string
	mediaDir  string
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// New constructs a Cleaner. The ledger is optional; when present, sweeps are
// recorded and old events pruned alongside the jobs they describe.
func New(store *jobstore.Store, eventLog *ledger.Ledger, cfg *config.Config, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = logging.NewNop()
	}
	retention := defaultRetention
	if cfg.Workflow.CompletedRetentionHours > 0 {
		retention = time.Duration(cfg.Workflow.CompletedRetentionHours) * time.Hour
	}
	interval := defaultSweepInterval
	if cfg.Workflow.CleanupIntervalMinutes > 0 {
		interval = time.Duration(cfg.Workflow.CleanupIntervalMinutes) * time.Minute
	}
	return &Cleaner{
		store:     store,
		ledger:    eventLog,
		scenesDir: cfg.ScenesDir(),
		mediaDir:  cfg.MediaDir(),
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// RemoveArtifacts deletes the scene file and media subtree owned by a job.
// The job record itself is untouched. Errors are logged and swallowed since
// artifact removal must never block a state transition.
func (c *Cleaner) RemoveArtifacts(job *jobstore.Job) {
	if job == nil {
		return
	}
	scenePath := job.SourcePath
	if strings.TrimSpace(scenePath) == "" {
		scenePath = filepath.Join(c.scenesDir, job.ID+".py")
	}
	if err := os.Remove(scenePath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove scene file",
			logging.String("path", scenePath),
			logging.Error(err))
	}

	// Media lives under videos/<stem> where the stem is the scene file name.
	stem := strings.TrimSuffix(filepath.Base(scenePath), filepath.Ext(scenePath))
	if stem != "" {
		mediaPath := filepath.Join(c.mediaDir, "videos", stem)
		if err := os.RemoveAll(mediaPath); err != nil {
			c.logger.Warn("failed to remove media subtree",
				logging.String("path", mediaPath),
				logging.Error(err))
		}
	}
}

// Delete removes a job's artifacts and its record.
func (c *Cleaner) Delete(ctx context.Context, jobID string) error {
	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	c.RemoveArtifacts(job)
	if err := c.store.Delete(ctx, jobID); err != nil {
		return err
	}
	if c.ledger != nil {
		if err := c.ledger.Record(ctx, jobID, "deleted", string(job.Status), "", ""); err != nil {
			c.logger.Warn("failed to record delete event", logging.Error(err))
		}
	}
	return nil
}

// SweepExpired removes terminal jobs whose finish time fell outside the
// retention window. Returns the ids it removed.
func (c *Cleaner) SweepExpired(ctx context.Context) []string {
	jobs, err := c.store.List(ctx, 0)
	if err != nil {
		c.logger.Warn("retention sweep could not list jobs", logging.Error(err))
		return nil
	}
	cutoff := time.Now().Add(-c.retention)
	var removed []string
	for _, job := range jobs {
		if !jobstore.IsTerminalStatus(job.Status) {
			continue
		}
		finished := job.FinishedAt
		if finished == nil || finished.After(cutoff) {
			continue
		}
		if err := c.Delete(ctx, job.ID); err != nil {
			c.logger.Warn("retention sweep failed to delete job",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
			continue
		}
		removed = append(removed, job.ID)
		c.logger.Info("expired job removed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Duration("age", time.Since(*finished)))
	}
	if c.ledger != nil {
		if err := c.ledger.Prune(ctx, cutoff); err != nil {
			c.logger.Warn("ledger prune failed", logging.Error(err))
		}
	}
	return removed
}

// Run sweeps on the configured interval until the context ends.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SweepExpired(ctx)
		}
	}
}
