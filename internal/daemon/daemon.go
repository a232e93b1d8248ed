package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scenesmith/internal/api"
	"scenesmith/internal/cleanup"
	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/logging"
	"scenesmith/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobstore.Store
	eventLog *ledger.Ledger
	manager  *workflow.Manager
	cleaner  *cleanup.Cleaner
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	store *jobstore.Store,
	eventLog *ledger.Ledger,
	manager *workflow.Manager,
	cleaner *cleanup.Cleaner,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil || cleaner == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and cleaner")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataRoot, "scenesmithd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		eventLog: eventLog,
		manager:  manager,
		cleaner:  cleaner,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, api.NewJobService(store, eventLog), logger)
	return d, nil
}

// Start acquires the daemon lock and launches the workflow manager, the
// retention sweeper, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scenesmith daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	go d.cleaner.Run(runCtx)

	if err := d.server.start(runCtx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.server.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.eventLog != nil {
		_ = d.eventLog.Close()
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listen address once the server is up.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// LockPath returns the lock file guarding single-instance execution.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
