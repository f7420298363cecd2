// Package service wires the engine components over a record store and adds
// caching, rebuild coordination and input validation.
package service

import (
	"context"
	"log/slog"
	"time"

	"pacer/internal/curve"
	"pacer/internal/messaging"
	"pacer/internal/models"
	"pacer/internal/pacing"
	"pacer/internal/scoring"
	"pacer/internal/snapshot"
	"pacer/internal/targeting"
)

// Store is the full record-store surface; both the PostgreSQL repositories
// and the in-memory store implement it.
type Store interface {
	pacing.Store
	snapshot.Store
	curve.Store
	scoring.Store
	targeting.Store

	UpsertEvent(ctx context.Context, e *models.Event) error
	UpsertOrder(ctx context.Context, o *models.Order) error
	UpsertAdSpend(ctx context.Context, a *models.AdSpend) error
	GetCurve(ctx context.Context, pattern string) (*models.PacingCurve, error)
	GetCustomer(ctx context.Context, email string) (*models.Customer, error)
	ListHighValueCustomers(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, error)
	ListAtRiskCustomers(ctx context.Context, minOrders, minDaysInactive int) ([]models.Customer, error)
	SegmentCounts(ctx context.Context) (map[string]int, error)
}

// Publisher sends notifications to the message bus
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// SharedCache is a cross-process cache that must be cleared after a rebuild
type SharedCache interface {
	Invalidate(ctx context.Context) error
}

type Options struct {
	Workers  int
	CacheTTL time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

type Services struct {
	Events    *EventService
	Pacing    *PacingService
	Pipeline  *PipelineService
	Customers *CustomerService
	Ingest    *IngestService
	Targeting *TargetingService
}

func NewServices(store Store, natsClient *messaging.NATSClient, opts Options) *Services {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var publisher Publisher
	if natsClient != nil {
		publisher = natsClient
	}

	pacingService := NewPacingService(store, opts)
	return &Services{
		Events:    NewEventService(store),
		Pacing:    pacingService,
		Pipeline:  NewPipelineService(store, pacingService, publisher, opts),
		Customers: NewCustomerService(store),
		Ingest:    NewIngestService(store),
		Targeting: NewTargetingService(store, pacingService, opts),
	}
}
