package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "pacer/internal/errors"
	"pacer/internal/models"
)

// IngestService validates and upserts records arriving from the sales and
// advertising feeds. Every upsert is keyed by the record's natural key, so
// redelivery is harmless.
type IngestService struct {
	store Store
}

func NewIngestService(store Store) *IngestService {
	return &IngestService{store: store}
}

func (s *IngestService) UpsertEvent(ctx context.Context, e *models.Event) error {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" || strings.TrimSpace(e.Name) == "" || e.Date.IsZero() {
		return fmt.Errorf("%w: event requires event_id, name and event_date", apperrors.ErrInvalidInput)
	}
	if e.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", apperrors.ErrInvalidInput)
	}
	switch e.Status {
	case "":
		e.Status = models.StatusUpcoming
	case models.StatusUpcoming, models.StatusLive, models.StatusCompleted:
	default:
		return fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, e.Status)
	}
	e.Date = e.Date.UTC()

	if err := s.store.UpsertEvent(ctx, e); err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// UpsertOrder canonicalizes the buyer email and derives days before event
// from the order's event, which must already be known.
func (s *IngestService) UpsertOrder(ctx context.Context, o *models.Order) error {
	if strings.TrimSpace(o.ID) == "" || strings.TrimSpace(o.EventID) == "" || o.Timestamp.IsZero() {
		return fmt.Errorf("%w: order requires order_id, event_id and order_timestamp", apperrors.ErrInvalidInput)
	}
	if o.TicketCount < 1 {
		return fmt.Errorf("%w: ticket_count must be at least 1", apperrors.ErrInvalidInput)
	}
	if o.GrossAmount < 0 {
		return fmt.Errorf("%w: gross_amount must not be negative", apperrors.ErrInvalidInput)
	}

	e, err := s.store.GetEvent(ctx, o.EventID)
	if err != nil {
		return fmt.Errorf("failed to get event %s: %w", o.EventID, err)
	}
	if e == nil {
		return fmt.Errorf("order %s references unknown event %s: %w", o.ID, o.EventID, apperrors.ErrNotFound)
	}

	o.Email = models.NormalizeEmail(o.Email)
	o.Timestamp = o.Timestamp.UTC()
	o.DaysBeforeEvent = models.DaysBefore(e.Date, o.Timestamp)

	if err := s.store.UpsertOrder(ctx, o); err != nil {
		return fmt.Errorf("failed to store order: %w", err)
	}
	return nil
}

func (s *IngestService) UpsertAdSpend(ctx context.Context, a *models.AdSpend) error {
	if strings.TrimSpace(a.EventID) == "" || strings.TrimSpace(a.CampaignID) == "" || a.SpendDate.IsZero() {
		return fmt.Errorf("%w: ad spend requires event_id, campaign_id and spend_date", apperrors.ErrInvalidInput)
	}
	if a.Spend < 0 {
		return fmt.Errorf("%w: spend must not be negative", apperrors.ErrInvalidInput)
	}
	a.SpendDate = models.DateOf(a.SpendDate)

	if err := s.store.UpsertAdSpend(ctx, a); err != nil {
		return fmt.Errorf("failed to store ad spend: %w", err)
	}
	return nil
}
