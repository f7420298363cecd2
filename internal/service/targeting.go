package service

import (
	"context"
	"fmt"
	"time"

	apperrors "pacer/internal/errors"
	"pacer/internal/metrics"
	"pacer/internal/models"
	"pacer/internal/targeting"
)

// TargetingService builds outreach audiences for stored events and for the
// merged session days that only exist in portfolio results.
type TargetingService struct {
	planner *targeting.Planner
	pacing  *PacingService
}

func NewTargetingService(store Store, pacing *PacingService, opts Options) *TargetingService {
	return &TargetingService{
		planner: targeting.NewPlanner(store, opts.Logger).WithClock(opts.Now),
		pacing:  pacing,
	}
}

// Event returns the targeting plan of eventID with at most pageSize customers
// per audience. A merged day id resolves through its constituent events.
func (s *TargetingService) Event(ctx context.Context, eventID string, pageSize int) (*models.Targeting, error) {
	if pageSize < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", apperrors.ErrInvalidInput)
	}
	if pageSize == 0 {
		pageSize = targeting.DefaultPageSize
	}
	pageSize = min(pageSize, targeting.MaxPageSize)

	t, err := s.planner.Resolve(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event %s: %w", eventID, err)
	}
	if t == nil {
		if t, err = s.resolveMerged(ctx, eventID); err != nil {
			return nil, err
		}
	}
	if t == nil {
		return nil, apperrors.ErrNotFound
	}

	start := time.Now()
	plan, err := s.planner.Plan(ctx, t, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to plan targeting for %s: %w", eventID, err)
	}
	metrics.Engine().ObserveAnalysis("targeting", time.Since(start))
	return plan, nil
}

func (s *TargetingService) resolveMerged(ctx context.Context, eventID string) (*targeting.Target, error) {
	portfolio, err := s.pacing.Portfolio(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, r := range portfolio.Events {
		if r.EventID != eventID || len(r.ConstituentEventIDs) == 0 {
			continue
		}
		t, err := s.planner.ResolveMerged(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve merged day %s: %w", eventID, err)
		}
		return t, nil
	}
	return nil, nil
}
