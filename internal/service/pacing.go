package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	apperrors "pacer/internal/errors"
	"pacer/internal/metrics"
	"pacer/internal/models"
	"pacer/internal/pacing"
)

// PacingService serves event and portfolio analyses through a short-lived
// in-process cache keyed by the as-of date.
type PacingService struct {
	analyzer *pacing.Analyzer
	cache    *cache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

func NewPacingService(store Store, opts Options) *PacingService {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PacingService{
		analyzer: pacing.NewAnalyzer(store, opts.Logger, opts.Workers).WithClock(opts.Now),
		cache:    cache.New(ttl, 2*ttl),
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// AsOf is the calendar day analyses are computed for
func (s *PacingService) AsOf() time.Time {
	return models.DateOf(s.now())
}

func (s *PacingService) cacheKey(kind, id string) string {
	return kind + "|" + id + "|" + s.AsOf().Format("2006-01-02")
}

// AnalyzeEvent returns the analysis of one event. fresh bypasses the cache.
func (s *PacingService) AnalyzeEvent(ctx context.Context, eventID string, fresh bool) (*models.EventPacingResult, error) {
	key := s.cacheKey("event", eventID)
	if !fresh {
		if v, ok := s.cache.Get(key); ok {
			metrics.Engine().CacheLookup(metrics.CacheLayerMemory, true)
			return v.(*models.EventPacingResult), nil
		}
		metrics.Engine().CacheLookup(metrics.CacheLayerMemory, false)
	}

	start := time.Now()
	res, err := s.analyzer.AnalyzeEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze event %s: %w", eventID, err)
	}
	if res == nil {
		return nil, apperrors.ErrNotFound
	}
	metrics.Engine().ObserveAnalysis("event", time.Since(start))
	metrics.Engine().CountDecision(string(res.Decision))

	s.cache.SetDefault(key, res)
	return res, nil
}

// Portfolio returns the ranked portfolio with its totals and decision histogram
func (s *PacingService) Portfolio(ctx context.Context, fresh bool) (*models.PortfolioResponse, error) {
	key := s.cacheKey("portfolio", "all")
	if !fresh {
		if v, ok := s.cache.Get(key); ok {
			metrics.Engine().CacheLookup(metrics.CacheLayerMemory, true)
			return v.(*models.PortfolioResponse), nil
		}
		metrics.Engine().CacheLookup(metrics.CacheLayerMemory, false)
	}

	start := time.Now()
	results, err := s.analyzer.AnalyzePortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze portfolio: %w", err)
	}
	if results == nil {
		results = []*models.EventPacingResult{}
	}
	metrics.Engine().ObserveAnalysis("portfolio", time.Since(start))
	for _, r := range results {
		metrics.Engine().CountDecision(string(r.Decision))
	}

	summary, decisions := models.Summarize(results)
	resp := &models.PortfolioResponse{
		Portfolio: summary,
		Decisions: decisions,
		Events:    results,
		AsOf:      s.AsOf().Format("2006-01-02"),
	}
	s.cache.SetDefault(key, resp)
	return resp, nil
}

// Invalidate drops cached analyses and the loaded curve set
func (s *PacingService) Invalidate() {
	s.cache.Flush()
	s.analyzer.InvalidateCurves()
}
