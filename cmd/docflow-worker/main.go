package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/docflow/internal/app"
	"github.com/joseph-ayodele/docflow/internal/common"
)

// docflow-worker consumes queued jobs from the broker. Jobs submitted with
// mode=queue stay pending until a worker picks them up.
func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		common.NewLogger(common.LogConfig{}).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log).With("component", "worker")
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Stale pending jobs are republished; processing jobs are executed inline.
	if _, err := a.ConnectBroker(); err != nil {
		logger.Error("failed to connect broker", "error", err)
		os.Exit(1)
	}
	go a.Orchestrator.RunRecovery(ctx, cfg.Pipeline.RecoveryInterval)

	consumer, err := a.NewConsumer()
	if err != nil {
		logger.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	consumer.Shutdown()
}
