package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"scenesmith/internal/cleanup"
	"scenesmith/internal/codegen"
	"scenesmith/internal/config"
	"scenesmith/internal/daemon"
	"scenesmith/internal/frames"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/logging"
	"scenesmith/internal/notifications"
	"scenesmith/internal/preflight"
	"scenesmith/internal/render"
	"scenesmith/internal/repair"
	"scenesmith/internal/services/llm"
	"scenesmith/internal/stage"
	"scenesmith/internal/vision"
	"scenesmith/internal/workflow"
)

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("scenesmith-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update scenesmith.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "scenesmith-*.log", Keep: []string{logPath}},
	)

	pidPath := daemonPIDPath(cfg.Paths.LogDir)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	for _, result := range preflight.RunAll(signalCtx, cfg) {
		if !result.Passed {
			logger.Warn("preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
		}
	}
	for _, status := range preflight.CheckSystemDeps(signalCtx, cfg) {
		if !status.Available {
			logger.Warn("system dependency unavailable",
				logging.String("dependency", status.Name),
				logging.String("detail", status.Detail))
		}
	}

	store, err := jobstore.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open job store failed", "startup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another daemon instance may hold the store lock"))
		return err
	}
	defer store.Close()

	eventLog, err := ledger.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open event ledger failed", "startup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data_root permissions and disk space"))
		return err
	}
	defer eventLog.Close()

	d, err := buildDaemon(cfg, store, eventLog, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("scenesmith daemon shutting down")
	return nil
}

func buildDaemon(cfg *config.Config, store *jobstore.Store, eventLog *ledger.Ledger, logger *slog.Logger) (*daemon.Daemon, error) {
	generationClient := llm.NewClient(modelClientConfig(cfg.GenerationModel()))
	visionClient := llm.NewClient(modelClientConfig(cfg.VisionModel()))

	generator := codegen.NewGenerator(generationClient, cfg.Generation.MaxRegenerations, logger)
	renderer := render.NewDriver(cfg, logger)
	sampler := frames.NewSampler(cfg, logger)
	analyzer := vision.NewAnalyzer(visionClient, cfg, logger)
	planner := repair.NewPlanner(generationClient, cfg, logger)
	notifier := notifications.NewService(cfg)

	// Model endpoints are validated once by preflight at startup; probing them
	// on every /health request would hit the remote API each time.
	checkers := []stage.Checker{
		stage.CheckFunc("renderer", func(context.Context) error { return renderer.HealthCheck() }),
		stage.CheckFunc("frame-sampler", func(context.Context) error { return sampler.HealthCheck() }),
	}

	pipeline := workflow.NewPipeline(cfg, store, eventLog, generator, renderer, sampler, analyzer, planner, logger)
	manager := workflow.NewManager(cfg, store, eventLog, pipeline, notifier, checkers, logger)
	cleaner := cleanup.New(store, eventLog, cfg, logger)

	return daemon.New(cfg, store, eventLog, manager, cleaner, logger)
}

func modelClientConfig(mc config.ModelConfig) llm.Config {
	return llm.Config{
		APIKey:         mc.APIKey,
		BaseURL:        mc.BaseURL,
		Model:          mc.Model,
		Referer:        mc.Referer,
		Title:          mc.Title,
		TimeoutSeconds: mc.TimeoutSeconds,
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "scenesmith.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
