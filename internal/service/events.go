package service

import (
	"context"
	"fmt"

	apperrors "pacer/internal/errors"
	"pacer/internal/models"
	"pacer/internal/pattern"
)

type EventService struct {
	store Store
}

func NewEventService(store Store) *EventService {
	return &EventService{store: store}
}

func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

func (s *EventService) Curves(ctx context.Context) ([]models.PacingCurve, error) {
	curves, err := s.store.ListCurves(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list curves: %w", err)
	}
	if curves == nil {
		curves = []models.PacingCurve{}
	}
	return curves, nil
}

// Curve looks a curve up by series key, falling back to treating the
// argument as an edition name of the series.
func (s *EventService) Curve(ctx context.Context, keyOrName string) (*models.PacingCurve, error) {
	c, err := s.store.GetCurve(ctx, keyOrName)
	if err != nil {
		return nil, fmt.Errorf("failed to get curve: %w", err)
	}
	if c == nil {
		if key := pattern.Key(keyOrName); key != keyOrName {
			if c, err = s.store.GetCurve(ctx, key); err != nil {
				return nil, fmt.Errorf("failed to get curve: %w", err)
			}
		}
	}
	if c == nil {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}
