package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	"github.com/joseph-ayodele/docflow/internal/app"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/queue"
	"github.com/joseph-ayodele/docflow/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		common.NewLogger(common.LogConfig{}).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log)
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

	pool := a.StartPool()
	if _, err := a.ConnectBroker(); err != nil {
		logger.Error("failed to connect broker", "error", err)
		os.Exit(1)
	}

	var consumer *queue.Consumer
	if cfg.Broker.EmbeddedConsumer {
		if consumer, err = a.NewConsumer(); err != nil {
			logger.Error("failed to create consumer", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(); err != nil {
			logger.Error("failed to start consumer", "error", err)
			os.Exit(1)
		}
	}

	go a.Orchestrator.RunRecovery(ctx, cfg.Pipeline.RecoveryInterval)

	checks := a.Health()
	router, err := server.NewRouter(cfg.Server, server.Deps{
		Jobs:     a.Orchestrator,
		Docs:     a.Docs,
		Exporter: a.Exporter,
		Limiter:  a.Cache,
		Health:   checks,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hs := health.NewServer()
	grpcSrv := server.NewGRPCServer(hs)
	go checks.Watch(ctx, hs, 10*time.Second)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("grpc health server starting", "addr", cfg.Server.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcSrv.GracefulStop()
	if consumer != nil {
		consumer.Shutdown()
	}
	pool.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
