package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"pacer/internal/config"
	"pacer/internal/logger"
	"pacer/internal/messaging"
	"pacer/internal/models"
	"pacer/internal/service"
)

var (
	only   = flag.String("only", "", "Run a single step: snapshots, curves or customers")
	notify = flag.Bool("notify", false, "Publish the rebuild result to NATS")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	store, db, err := service.OpenStore(cfg.StoreDriver, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	if db != nil {
		defer db.Close()
	}

	var natsClient *messaging.NATSClient
	if *notify {
		natsClient, err = messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", "error", err)
		}
		defer natsClient.Close()
	}

	services := service.NewServices(store, natsClient, service.Options{
		Workers:  cfg.Engine.Workers,
		CacheTTL: cfg.Engine.CacheTTL,
		Logger:   slog.Default(),
	})

	var steps []service.Step
	for _, step := range services.Pipeline.Steps() {
		if *only == "" || *only == step.Name {
			steps = append(steps, step)
		}
	}
	if len(steps) == 0 {
		logger.Fatal("Unknown step", "step", *only)
	}

	ctx := context.Background()
	start := time.Now()
	bar := progressbar.Default(int64(len(steps)), "rebuild")

	counts := make(map[string]int, len(steps))
	for _, step := range steps {
		bar.Describe(step.Name)
		n, err := step.Run(ctx)
		if err != nil {
			logger.Fatal("Rebuild step failed", "step", step.Name, "error", err)
		}
		counts[step.Name] = n
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	slog.Info("Rebuild completed", "counts", counts, "duration", time.Since(start))
	if db != nil {
		db.RebuildPressure(cfg.Engine.Workers)
	}

	if natsClient != nil {
		evt := models.PacingRebuiltEvent{
			Snapshots: counts["snapshots"],
			Curves:    counts["curves"],
			Customers: counts["customers"],
			Duration:  time.Since(start).String(),
			Timestamp: time.Now().UTC(),
		}
		if err := natsClient.Publish(models.SubjectPacingRebuilt, evt); err != nil {
			slog.Error("Failed to publish rebuild result", "error", err)
		}
	}
}
