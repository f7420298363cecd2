package consumers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/stan.go"

	"pacer/internal/cache"
	"pacer/internal/config"
	"pacer/internal/database"
	"pacer/internal/messaging"
	"pacer/internal/models"
	"pacer/internal/search"
	"pacer/internal/service"
)

const queueGroup = "pacer-consumers"

type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	es       *search.ElasticsearchClient
	services *service.Services
	handlers *Handlers
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	store, db, err := service.OpenStore(cfg.StoreDriver, cfg.Database)
	if err != nil {
		return nil, err
	}

	cs := &ConsumerService{db: db}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		cs.Shutdown(context.Background())
		return nil, err
	}
	cs.nats = natsClient

	cs.services = service.NewServices(store, natsClient, service.Options{
		Workers:  cfg.Engine.Workers,
		CacheTTL: cfg.Engine.CacheTTL,
		Logger:   slog.Default(),
	})

	if cfg.Valkey.Enabled {
		valkey, err := cache.NewValkeyClient(cfg.Valkey)
		if err != nil {
			cs.Shutdown(context.Background())
			return nil, err
		}
		cs.valkey = valkey
		cs.services.Pipeline.AddSharedCache(valkey)
	}

	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			cs.Shutdown(context.Background())
			return nil, err
		}
		cs.es = es
	}

	cs.handlers = NewHandlers(cs.services.Ingest, cs.services.Pipeline)
	return cs, nil
}

// Services exposes the engine to background jobs
func (cs *ConsumerService) Services() *service.Services {
	return cs.services
}

// Valkey returns the shared portfolio cache, or nil when disabled
func (cs *ConsumerService) Valkey() *cache.ValkeyClient {
	return cs.valkey
}

// Search returns the pacing index, or nil when disabled
func (cs *ConsumerService) Search() *search.ElasticsearchClient {
	return cs.es
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	subs := []struct {
		subject string
		handle  stan.MsgHandler
	}{
		{models.SubjectIngestEvent, cs.handlers.HandleEvent},
		{models.SubjectIngestOrder, cs.handlers.HandleOrder},
		{models.SubjectIngestAdSpend, cs.handlers.HandleAdSpend},
		{models.SubjectIngestCompleted, cs.handlers.HandleCompleted},
	}
	for _, s := range subs {
		if _, err := cs.nats.SubscribeQueue(s.subject, queueGroup, s.handle); err != nil {
			return fmt.Errorf("failed to start consumer for %s: %w", s.subject, err)
		}
	}

	slog.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.valkey != nil {
		if err := cs.valkey.Close(); err != nil {
			slog.Error("Error closing Valkey connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
