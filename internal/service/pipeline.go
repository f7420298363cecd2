package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pacer/internal/curve"
	apperrors "pacer/internal/errors"
	"pacer/internal/metrics"
	"pacer/internal/models"
	"pacer/internal/scoring"
	"pacer/internal/snapshot"
)

// Step is one stage of the batch rebuild
type Step struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// PipelineService runs the batch passes that derive snapshots, curves and
// customer profiles from raw records. Only one rebuild runs at a time.
type PipelineService struct {
	snapshots *snapshot.Builder
	curves    *curve.Builder
	scorer    *scoring.Scorer
	pacing    *PacingService
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	shared []SharedCache
}

func NewPipelineService(store Store, pacingService *PacingService, publisher Publisher, opts Options) *PipelineService {
	return &PipelineService{
		snapshots: snapshot.NewBuilder(store, opts.Logger),
		curves:    curve.NewBuilder(store, opts.Logger, opts.Workers).WithClock(opts.Now),
		scorer:    scoring.NewScorer(store, opts.Logger, opts.Workers).WithClock(opts.Now),
		pacing:    pacingService,
		publisher: publisher,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// AddSharedCache registers a cache to clear whenever derived data changes
func (s *PipelineService) AddSharedCache(c SharedCache) {
	s.shared = append(s.shared, c)
}

func (s *PipelineService) RebuildSnapshots(ctx context.Context) (int, error) {
	return s.exclusive(ctx, s.runSnapshots)
}

func (s *PipelineService) BuildCurves(ctx context.Context) (int, error) {
	return s.exclusive(ctx, s.runCurves)
}

func (s *PipelineService) ScoreCustomers(ctx context.Context) (int, error) {
	return s.exclusive(ctx, s.runCustomers)
}

// Steps lists the rebuild stages in dependency order, for callers that
// report progress per stage. Callers must not run them concurrently with
// Rebuild.
func (s *PipelineService) Steps() []Step {
	return []Step{
		{Name: metrics.StepSnapshots, Run: s.runSnapshots},
		{Name: metrics.StepCurves, Run: s.runCurves},
		{Name: metrics.StepCustomers, Run: s.runCustomers},
	}
}

// Rebuild runs snapshots, curves and customers in order, then announces the
// result on the bus.
func (s *PipelineService) Rebuild(ctx context.Context) (*models.RebuildResult, error) {
	if !s.mu.TryLock() {
		return nil, apperrors.ErrRebuildInProgress
	}
	defer s.mu.Unlock()

	start := time.Now()
	var counts []int
	for _, step := range s.Steps() {
		n, err := step.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("rebuild step %s failed: %w", step.Name, err)
		}
		counts = append(counts, n)
	}
	res := &models.RebuildResult{Snapshots: counts[0], Curves: counts[1], Customers: counts[2]}

	s.logger.Info("Rebuild completed",
		"snapshots", res.Snapshots, "curves", res.Curves, "customers", res.Customers,
		"duration", time.Since(start))

	if s.publisher != nil {
		evt := models.PacingRebuiltEvent{
			Snapshots: res.Snapshots,
			Curves:    res.Curves,
			Customers: res.Customers,
			Duration:  time.Since(start).String(),
			Timestamp: s.now(),
		}
		if err := s.publisher.Publish(models.SubjectPacingRebuilt, evt); err != nil {
			s.logger.Warn("Failed to publish rebuild notification", "error", err)
		}
	}
	return res, nil
}

func (s *PipelineService) exclusive(ctx context.Context, run func(context.Context) (int, error)) (int, error) {
	if !s.mu.TryLock() {
		return 0, apperrors.ErrRebuildInProgress
	}
	defer s.mu.Unlock()
	return run(ctx)
}

func (s *PipelineService) runSnapshots(ctx context.Context) (int, error) {
	return s.timed(ctx, metrics.StepSnapshots, s.snapshots.RebuildAll)
}

func (s *PipelineService) runCurves(ctx context.Context) (int, error) {
	n, err := s.timed(ctx, metrics.StepCurves, s.curves.BuildAll)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return n, nil
}

func (s *PipelineService) runCustomers(ctx context.Context) (int, error) {
	n, err := s.timed(ctx, metrics.StepCustomers, s.scorer.ScoreAll)
	if err != nil {
		return 0, err
	}
	// target counts in cached analyses depend on customer profiles
	s.invalidate(ctx)
	return n, nil
}

func (s *PipelineService) timed(ctx context.Context, step string, run func(context.Context) (int, error)) (int, error) {
	start := time.Now()
	n, err := run(ctx)
	if err != nil {
		return 0, err
	}
	metrics.Engine().ObserveRebuild(step, n, time.Since(start))
	return n, nil
}

func (s *PipelineService) invalidate(ctx context.Context) {
	s.pacing.Invalidate()
	for _, c := range s.shared {
		if err := c.Invalidate(ctx); err != nil {
			s.logger.Warn("Failed to invalidate shared cache", "error", err)
		}
	}
}
