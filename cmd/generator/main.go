package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"pacer/internal/config"
	"pacer/internal/generator"
	"pacer/internal/logger"
	"pacer/internal/messaging"
	"pacer/internal/models"
	"pacer/internal/service"
)

var (
	years     = flag.Int("years", 3, "Number of editions per series, the current year included")
	customers = flag.Int("customers", 500, "Size of the buyer pool")
	seed      = flag.Int64("seed", 1, "Random seed")
	rebuild   = flag.Bool("rebuild", true, "Rebuild snapshots, curves and customers afterwards")
	announce  = flag.Bool("announce", false, "Publish an ingest.completed message to NATS instead of rebuilding locally")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting history generator...", "years", *years, "customers", *customers, "seed", *seed)

	store, db, err := service.OpenStore(cfg.StoreDriver, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	if db != nil {
		defer db.Close()
	}

	var natsClient *messaging.NATSClient
	if *announce {
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

	ctx := context.Background()
	stats, err := generator.New(services.Ingest, generator.Options{
		Years:     *years,
		Customers: *customers,
		Seed:      *seed,
	}).Run(ctx)
	if err != nil {
		logger.Fatal("Failed to generate history", "error", err)
	}
	slog.Info("History generated", "events", stats.Events, "orders", stats.Orders, "ad_spend", stats.AdSpend)

	switch {
	case natsClient != nil:
		evt := models.IngestCompletedEvent{
			Source:    "generator",
			Events:    stats.Events,
			Orders:    stats.Orders,
			Timestamp: time.Now().UTC(),
		}
		if err := natsClient.Publish(models.SubjectIngestCompleted, evt); err != nil {
			logger.Fatal("Failed to announce generated history", "error", err)
		}
	case *rebuild:
		res, err := services.Pipeline.Rebuild(ctx)
		if err != nil {
			logger.Fatal("Failed to rebuild", "error", err)
		}
		slog.Info("Rebuild completed", "snapshots", res.Snapshots, "curves", res.Curves, "customers", res.Customers)
	}
}
