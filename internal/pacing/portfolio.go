package pacing

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"pacer/internal/models"
)

// AnalyzePortfolio analyzes every upcoming event, folds timed-entry sessions
// into per-day results and ranks them by urgency, then by proximity.
func (a *Analyzer) AnalyzePortfolio(ctx context.Context) ([]*models.EventPacingResult, error) {
	today := models.DateOf(a.now())
	events, err := a.store.ListEvents(ctx, models.EventFilter{From: today})
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming events: %w", err)
	}

	// warm the curve cache once instead of racing for it per event
	if _, err := a.curveIndex(ctx); err != nil {
		return nil, err
	}

	results := make([]*models.EventPacingResult, len(events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range events {
		i := i
		g.Go(func() error {
			r, err := a.analyze(gctx, events[i])
			if err != nil {
				a.logger.Warn("Skipping event in portfolio", "event_id", events[i].ID, "error", err)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analyses := make([]Analysis, 0, len(events))
	for i, r := range results {
		if r != nil {
			analyses = append(analyses, Analysis{Event: events[i], Result: r})
		}
	}

	ranked, err := a.GroupSessions(ctx, analyses)
	if err != nil {
		return nil, fmt.Errorf("failed to group sessions: %w", err)
	}
	Rank(ranked)

	a.logger.Info("Portfolio analyzed", "events", len(events), "results", len(ranked))
	return ranked, nil
}

// Rank orders results by urgency descending, then days until ascending
func Rank(results []*models.EventPacingResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Urgency != results[j].Urgency {
			return results[i].Urgency > results[j].Urgency
		}
		return results[i].DaysUntil < results[j].DaysUntil
	})
}
