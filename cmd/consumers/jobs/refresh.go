package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pacer/internal/models"
)

// PortfolioSource computes the ranked portfolio
type PortfolioSource interface {
	Portfolio(ctx context.Context, fresh bool) (*models.PortfolioResponse, error)
}

// Indexer stores pacing results for search
type Indexer interface {
	IndexResults(ctx context.Context, asOf time.Time, results []*models.EventPacingResult) error
}

// PortfolioStore shares the rendered portfolio with API replicas
type PortfolioStore interface {
	SetPortfolio(ctx context.Context, asOf time.Time, portfolio any, ttl time.Duration) error
}

// PortfolioRefreshJob recomputes the portfolio on an interval and pushes it
// to the search index and the shared cache
type PortfolioRefreshJob struct {
	source   PortfolioSource
	indexer  Indexer
	store    PortfolioStore
	interval time.Duration
	ttl      time.Duration
	ticker   *time.Ticker
	done     chan bool
	running  sync.Mutex
}

// NewPortfolioRefreshJob creates the job. indexer and store may be nil.
func NewPortfolioRefreshJob(source PortfolioSource, indexer Indexer, store PortfolioStore, interval, ttl time.Duration) *PortfolioRefreshJob {
	return &PortfolioRefreshJob{
		source:   source,
		indexer:  indexer,
		store:    store,
		interval: interval,
		ttl:      ttl,
		done:     make(chan bool),
	}
}

func (j *PortfolioRefreshJob) Start(ctx context.Context) {
	slog.Info("Starting portfolio refresh job", "interval", j.interval)

	j.ticker = time.NewTicker(j.interval)

	go j.refresh(ctx)

	go func() {
		for {
			select {
			case <-j.ticker.C:
				go j.refresh(ctx)
			case <-j.done:
				slog.Info("Portfolio refresh job stopped")
				return
			}
		}
	}()
}

func (j *PortfolioRefreshJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
}

// refresh skips a tick while the previous one is still running
func (j *PortfolioRefreshJob) refresh(ctx context.Context) {
	if !j.running.TryLock() {
		slog.Debug("Portfolio refresh still running, skipping tick")
		return
	}
	defer j.running.Unlock()

	if err := j.Refresh(ctx); err != nil {
		slog.Error("Portfolio refresh failed", "error", err)
	}
}

// Refresh computes a fresh portfolio and publishes it
func (j *PortfolioRefreshJob) Refresh(ctx context.Context) error {
	start := time.Now()
	portfolio, err := j.source.Portfolio(ctx, true)
	if err != nil {
		return err
	}
	asOf, err := time.Parse("2006-01-02", portfolio.AsOf)
	if err != nil {
		return err
	}

	if j.indexer != nil {
		if err := j.indexer.IndexResults(ctx, asOf, portfolio.Events); err != nil {
			slog.Error("Failed to index portfolio", "error", err)
		}
	}
	if j.store != nil {
		if err := j.store.SetPortfolio(ctx, asOf, portfolio, j.ttl); err != nil {
			slog.Error("Failed to cache portfolio", "error", err)
		}
	}

	slog.Info("Portfolio refreshed",
		"events", len(portfolio.Events), "as_of", portfolio.AsOf, "elapsed", time.Since(start))
	return nil
}
