package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/stan.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pacer/internal/cache"
	"pacer/internal/config"
	"pacer/internal/database"
	"pacer/internal/generator"
	"pacer/internal/handlers"
	"pacer/internal/messaging"
	"pacer/internal/middleware"
	"pacer/internal/models"
	"pacer/internal/search"
	"pacer/internal/service"
)

// Server is the HTTP API of the pacing engine
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	es       *search.ElasticsearchClient
	services *service.Services
}

// NewServer connects the configured backends. NATS, Valkey and
// Elasticsearch are optional; the store is not.
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	store, db, err := service.OpenStore(cfg.StoreDriver, cfg.Database)
	if err != nil {
		return nil, err
	}
	s := &Server{config: cfg, db: db}

	if cfg.NATS.Enabled {
		natsClient, err := messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			s.Cleanup()
			return nil, err
		}
		s.nats = natsClient
	}

	s.services = service.NewServices(store, s.nats, service.Options{
		Workers:  cfg.Engine.Workers,
		CacheTTL: cfg.Engine.CacheTTL,
		Logger:   slog.Default(),
	})

	if s.nats != nil {
		// rebuilds in other processes change curves and customers under us
		if _, err := s.nats.Subscribe(models.SubjectPacingRebuilt, s.onRebuilt); err != nil {
			s.Cleanup()
			return nil, err
		}
	}

	// typed nils must not reach the handlers' interfaces
	var portfolioCache handlers.PortfolioCache
	if cfg.Valkey.Enabled {
		valkey, err := cache.NewValkeyClient(cfg.Valkey)
		if err != nil {
			s.Cleanup()
			return nil, err
		}
		s.valkey = valkey
		portfolioCache = valkey
		s.services.Pipeline.AddSharedCache(valkey)
	}

	var searcher handlers.Searcher
	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			s.Cleanup()
			return nil, err
		}
		s.es = es
		searcher = es
	}

	if cfg.DemoSeed {
		if err := s.seed(); err != nil {
			s.Cleanup()
			return nil, err
		}
	}

	s.router = gin.New()
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.Logger())

	api := s.router.Group("/api")
	api.Use(middleware.Timeout(cfg.RequestTimeout))
	handlers.NewHandlers(s.services, portfolioCache, searcher, cfg.Engine.CacheTTL).RegisterRoutes(api)

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s, nil
}

// seed fills an empty store with generated history and derives everything
// the engine needs from it
func (s *Server) seed() error {
	ctx := context.Background()
	stats, err := generator.New(s.services.Ingest, generator.Options{Seed: 1}).Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}
	res, err := s.services.Pipeline.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild demo data: %w", err)
	}
	slog.Info("Seeded demo data",
		"events", stats.Events, "orders", stats.Orders, "ad_spend", stats.AdSpend,
		"curves", res.Curves, "customers", res.Customers)
	return nil
}

func (s *Server) onRebuilt(m *stan.Msg) {
	var evt models.PacingRebuiltEvent
	if err := json.Unmarshal(m.Data, &evt); err != nil {
		slog.Warn("Ignoring malformed rebuild notification", "error", err)
		return
	}
	s.services.Pacing.Invalidate()
	slog.Info("Analysis cache invalidated after rebuild",
		"curves", evt.Curves, "customers", evt.Customers, "rebuilt_at", evt.Timestamp)
}

func (s *Server) healthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "ok",
		"service": "pacer-api",
		"store":   s.config.StoreDriver,
	}

	if s.db != nil {
		hc := s.db.Health(c.Request.Context())
		body["database"] = hc
		if hc.Status != "healthy" {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}

	if s.es != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.es.HealthCheck(ctx); err != nil {
			body["search"] = err.Error()
		} else {
			body["search"] = "healthy"
		}
	}

	c.JSON(status, body)
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter returns the router for testing
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup closes every backend connection
func (s *Server) Cleanup() error {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.valkey != nil {
		if err := s.valkey.Close(); err != nil {
			slog.Error("Error closing Valkey connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
