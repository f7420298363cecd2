package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pacer/cmd/consumers/jobs"
	"pacer/internal/config"
	"pacer/internal/consumers"
	"pacer/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting consumers service...")

	cfg.NATS.ClientID = "pacer-consumers"

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}

	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	// nil clients must stay untyped nils inside the job's interfaces
	var indexer jobs.Indexer
	if es := consumerService.Search(); es != nil {
		indexer = es
	}
	var portfolioStore jobs.PortfolioStore
	if valkey := consumerService.Valkey(); valkey != nil {
		portfolioStore = valkey
	}

	refreshJob := jobs.NewPortfolioRefreshJob(
		consumerService.Services().Pacing, indexer, portfolioStore,
		cfg.Engine.RefreshInterval, cfg.Engine.CacheTTL)
	ctx, stopJobs := context.WithCancel(context.Background())
	refreshJob.Start(ctx)

	slog.Info("Consumers service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down consumers service...")

	refreshJob.Stop()
	stopJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}

	slog.Info("Consumers service stopped")
}
