package main

import (
	"context"
	"log/slog"

	"scenesmith/internal/cleanup"
	"scenesmith/internal/codegen"
	"scenesmith/internal/config"
	"scenesmith/internal/daemon"
	"scenesmith/internal/frames"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/notifications"
	"scenesmith/internal/render"
	"scenesmith/internal/repair"
	"scenesmith/internal/services/llm"
	"scenesmith/internal/stage"
	"scenesmith/internal/vision"
	"scenesmith/internal/workflow"
)

func buildDaemon(cfg *config.Config, store *jobstore.Store, eventLog *ledger.Ledger, logger *slog.Logger) (*daemon.Daemon, error) {
	generationClient := llm.NewClient(modelClientConfig(cfg.GenerationModel()))
	visionClient := llm.NewClient(modelClientConfig(cfg.VisionModel()))

	generator := codegen.NewGenerator(generationClient, cfg.Generation.MaxRegenerations, logger)
	renderer := render.NewDriver(cfg, logger)
	sampler := frames.NewSampler(cfg, logger)
	analyzer := vision.NewAnalyzer(visionClient, cfg, logger)
	planner := repair.NewPlanner(generationClient, cfg, logger)
	notifier := notifications.NewService(cfg)

	// Model endpoints are validated by preflight at startup; probing them on
	// every /health request would hit the remote API each time.
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
