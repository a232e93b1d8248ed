package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := jobstore.Open(cfg)
	if err != nil {
		log.Fatalf("open job store: %v", err)
	}
	defer store.Close()

	eventLog, err := ledger.Open(cfg)
	if err != nil {
		log.Fatalf("open event ledger: %v", err)
	}
	defer eventLog.Close()

	d, err := buildDaemon(cfg, store, eventLog, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Stop()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("scenesmithd shutting down")
}
