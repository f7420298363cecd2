// Package curve builds historical sell-through curves for recurring event series.
package curve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pacer/internal/models"
	"pacer/internal/pattern"
)

// Store is the record access the builder needs
type Store interface {
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
	ListSnapshots(ctx context.Context, eventID string) ([]models.DailySnapshot, error)
	EventTotals(ctx context.Context, eventID string) (int, float64, error)
	SaveCurve(ctx context.Context, curve *models.PacingCurve) error
}

type Builder struct {
	store   Store
	logger  *slog.Logger
	workers int
	now     func() time.Time
}

func NewBuilder(store Store, logger *slog.Logger, workers int) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		store:   store,
		logger:  logger,
		workers: workers,
		now:     time.Now,
	}
}

// WithClock replaces the wall clock used to decide which events are in the past
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// BuildAll rebuilds the curve of every series with completed editions and
// returns how many curves were written. A series that fails is logged and skipped.
func (b *Builder) BuildAll(ctx context.Context) (int, error) {
	events, err := b.store.ListEvents(ctx, models.EventFilter{
		Status: models.StatusCompleted,
		Before: models.DateOf(b.now()),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list completed events: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })

	var order []string
	groups := make(map[string][]models.Event)
	for _, e := range events {
		key := pattern.Key(e.Name)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	var built atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, key := range order {
		key, members := key, groups[key]
		g.Go(func() error {
			c, err := b.buildGroup(gctx, key, members)
			if err != nil {
				b.logger.Warn("Skipping pacing curve", "pattern", key, "error", err)
				return nil
			}
			if c == nil {
				return nil
			}
			if err := b.store.SaveCurve(gctx, c); err != nil {
				b.logger.Warn("Failed to save pacing curve", "pattern", key, "error", err)
				return nil
			}
			built.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(built.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(built.Load()), err
	}

	b.logger.Info("Pacing curves rebuilt", "series", len(order), "curves", built.Load())
	return int(built.Load()), nil
}

func (b *Builder) buildGroup(ctx context.Context, key string, members []models.Event) (*models.PacingCurve, error) {
	observations := make(map[int][]float64)
	var sources []string
	var finals []float64

	for _, e := range members {
		snaps, err := b.store.ListSnapshots(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshots for %s: %w", e.ID, err)
		}
		if len(snaps) == 0 {
			continue
		}
		sources = append(sources, e.Name)

		if e.Capacity > 0 {
			tickets, _, err := b.store.EventTotals(ctx, e.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to load totals for %s: %w", e.ID, err)
			}
			finals = append(finals, float64(tickets)/float64(e.Capacity)*100)
		}

		for _, s := range snaps {
			observations[s.DaysBeforeEvent] = append(observations[s.DaysBeforeEvent], s.SellThroughPct)
		}
	}
	if len(sources) == 0 || len(observations) == 0 {
		return nil, nil
	}

	points := make(map[int]models.CurvePoint, len(observations))
	for days, values := range observations {
		points[days] = Percentiles(values)
	}

	eventType := members[len(members)-1].Category
	if eventType == "" {
		eventType = "other"
	}

	return &models.PacingCurve{
		Pattern:             key,
		EventType:           eventType,
		SourceEvents:        sources,
		Points:              points,
		AvgFinalSellThrough: mean(finals),
		SampleCount:         len(sources),
		UpdatedAt:           b.now().UTC(),
	}, nil
}

// Percentiles summarizes the observations of one bucket. values is not modified.
func Percentiles(values []float64) models.CurvePoint {
	n := len(values)
	if n == 0 {
		return models.CurvePoint{}
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p := models.CurvePoint{
		Median:  Median(sorted),
		P25:     sorted[0],
		P75:     sorted[n-1],
		Samples: n,
	}
	if n >= 4 {
		p.P25 = sorted[max(0, n/4-1)]
		p.P75 = sorted[min(n-1, 3*n/4)]
	}
	return p
}

// Median of an ascending slice; even counts average the two middle values
func Median(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return sorted[n/2]
	default:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
