// Package scoring computes lifetime, RFM and LTV profiles for every customer.
//
// Quintile ranks are relative to the whole population, so scoring is a batch:
// aggregates are gathered for everyone first, the population is sorted once
// per dimension, and only then is each customer profiled.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pacer/internal/models"
)

type Store interface {
	ListCustomerOrders(ctx context.Context) ([]models.CustomerOrder, error)
	UpsertCustomer(ctx context.Context, c *models.Customer) error
}

const (
	SegmentChampion    = "champion"
	SegmentLoyal       = "loyal"
	SegmentPotential   = "potential"
	SegmentAtRisk      = "at_risk"
	SegmentHibernating = "hibernating"
	SegmentOther       = "other"
)

// timing segments, by how far ahead a customer usually buys
const (
	TimingSuperEarlyBird = "super_early_bird"
	TimingEarlyBird      = "early_bird"
	TimingPlanner        = "planner"
	TimingSpontaneous    = "spontaneous"
	TimingLastMinute     = "last_minute"
)

type Scorer struct {
	store   Store
	logger  *slog.Logger
	workers int
	now     func() time.Time
}

func NewScorer(store Store, logger *slog.Logger, workers int) *Scorer {
	if workers < 1 {
		workers = 1
	}
	return &Scorer{store: store, logger: logger, workers: workers, now: time.Now}
}

func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

type aggregate struct {
	email     string
	orders    []models.CustomerOrder
	daysSince float64
	count     float64
	spent     float64
}

// ScoreAll rescores the entire customer population and returns how many
// profiles were written.
func (s *Scorer) ScoreAll(ctx context.Context) (int, error) {
	rows, err := s.store.ListCustomerOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load customer orders: %w", err)
	}
	now := s.now()

	// phase 1: raw aggregates per canonical email
	var population []*aggregate
	byEmail := make(map[string]*aggregate)
	for _, o := range rows {
		email := models.NormalizeEmail(o.Email)
		if email == "" {
			continue
		}
		a, ok := byEmail[email]
		if !ok {
			a = &aggregate{email: email}
			byEmail[email] = a
			population = append(population, a)
		}
		a.orders = append(a.orders, o)
	}
	for _, a := range population {
		last := a.orders[0].Timestamp
		for _, o := range a.orders {
			a.spent += o.GrossAmount
			if o.Timestamp.After(last) {
				last = o.Timestamp
			}
		}
		a.count = float64(len(a.orders))
		a.daysSince = float64(models.WholeDays(last, now))
	}

	// phase 2: one sort per dimension
	recency := NewQuintiles(pluck(population, func(a *aggregate) float64 { return a.daysSince }))
	frequency := NewQuintiles(pluck(population, func(a *aggregate) float64 { return a.count }))
	monetary := NewQuintiles(pluck(population, func(a *aggregate) float64 { return a.spent }))

	// phase 3: profile and persist
	var scored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, a := range population {
		a := a
		g.Go(func() error {
			c := Profile(a.email, a.orders,
				recency.Rank(a.daysSince, true),
				frequency.Rank(a.count, false),
				monetary.Rank(a.spent, false),
				now)
			if c == nil {
				return nil
			}
			if err := s.store.UpsertCustomer(gctx, c); err != nil {
				s.logger.Warn("Failed to save customer profile", "email", a.email, "error", err)
				return nil
			}
			scored.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(scored.Load()), err
	}

	s.logger.Info("Customers scored", "customers", len(population), "scored", scored.Load())
	return int(scored.Load()), nil
}

func pluck(population []*aggregate, f func(*aggregate) float64) []float64 {
	out := make([]float64, len(population))
	for i, a := range population {
		out[i] = f(a)
	}
	return out
}

// Quintiles ranks values against a population sorted once up front
type Quintiles struct {
	sorted []float64
}

func NewQuintiles(values []float64) *Quintiles {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return &Quintiles{sorted: sorted}
}

// Rank maps value to 1..5 by the position of its first occurrence in the
// population. reverse flips the scale so that low values rank high.
func (q *Quintiles) Rank(value float64, reverse bool) int {
	n := len(q.sorted)
	if n == 0 {
		return 3
	}
	idx := sort.SearchFloat64s(q.sorted, value)
	if idx >= n || q.sorted[idx] != value {
		idx = 0
	}
	pct := float64(idx) / float64(n)
	if reverse {
		pct = 1 - pct
	}
	switch {
	case pct >= 0.8:
		return 5
	case pct >= 0.6:
		return 4
	case pct >= 0.4:
		return 3
	case pct >= 0.2:
		return 2
	}
	return 1
}

// Profile builds one customer's scored profile. orders must be non-empty and
// are expected newest first; favorites break ties by first appearance.
func Profile(email string, orders []models.CustomerOrder, r, f, m int, now time.Time) *models.Customer {
	if len(orders) == 0 {
		return nil
	}

	c := &models.Customer{
		Email:        email,
		TotalOrders:  len(orders),
		EventTypes:   make(map[string]int),
		Cities:       make(map[string]int),
		RFMRecency:   r,
		RFMFrequency: f,
		RFMMonetary:  m,
		UpdatedAt:    now.UTC(),
	}

	var typeOrder, cityOrder []string
	seenEvents := make(map[string]bool)
	stamps := make([]time.Time, 0, len(orders))
	var daysBefore float64

	for _, o := range orders {
		c.TotalTickets += o.TicketCount
		c.TotalSpent += o.GrossAmount
		stamps = append(stamps, o.Timestamp)
		daysBefore += float64(o.DaysBeforeEvent)

		if o.EventType != "" {
			if c.EventTypes[o.EventType] == 0 {
				typeOrder = append(typeOrder, o.EventType)
			}
			c.EventTypes[o.EventType]++
		}
		if o.City != "" {
			if c.Cities[o.City] == 0 {
				cityOrder = append(cityOrder, o.City)
			}
			c.Cities[o.City]++
		}
		if o.EventName != "" && !seenEvents[o.EventName] {
			seenEvents[o.EventName] = true
			c.EventsAttended = append(c.EventsAttended, o.EventName)
		}
	}

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	c.FirstOrderDate = stamps[0]
	c.LastOrderDate = stamps[len(stamps)-1]
	c.DaysSinceLastOrder = models.WholeDays(c.LastOrderDate, now)
	c.TenureDays = models.WholeDays(c.FirstOrderDate, now)
	c.TotalEventsAttended = len(c.EventsAttended)

	c.AvgOrderValue = c.TotalSpent / float64(c.TotalOrders)
	c.AvgTicketsPerOrder = float64(c.TotalTickets) / float64(c.TotalOrders)
	if len(stamps) > 1 {
		var gaps int
		for i := 1; i < len(stamps); i++ {
			gaps += models.WholeDays(stamps[i-1], stamps[i])
		}
		c.AvgDaysBetweenOrders = float64(gaps) / float64(len(stamps)-1)
	}

	c.FavoriteEventType = argMax(c.EventTypes, typeOrder)
	c.FavoriteCity = argMax(c.Cities, cityOrder)

	c.AvgDaysBeforeEvent = daysBefore / float64(len(orders))
	c.TimingSegment = TimingSegment(c.AvgDaysBeforeEvent)
	c.RFMSegment = Segment(r, f, m)
	c.LTVScore = LTVScore(r, f, m, c.TotalOrders)
	c.LTVProjected = ProjectedLTV(c.AvgOrderValue, c.AvgDaysBetweenOrders)
	return c
}

func argMax(counts map[string]int, order []string) string {
	best, bestN := "", 0
	for _, k := range order {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}

// TimingSegment labels how far ahead a customer typically buys
func TimingSegment(avgDaysBefore float64) string {
	switch {
	case avgDaysBefore >= 45:
		return TimingSuperEarlyBird
	case avgDaysBefore >= 28:
		return TimingEarlyBird
	case avgDaysBefore >= 14:
		return TimingPlanner
	case avgDaysBefore >= 7:
		return TimingSpontaneous
	}
	return TimingLastMinute
}

func Segment(r, f, m int) string {
	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return SegmentChampion
	case r >= 3 && f >= 3:
		return SegmentLoyal
	case r >= 3 && f <= 2:
		return SegmentPotential
	case r <= 2 && f >= 3 && m >= 3:
		return SegmentAtRisk
	case r <= 2 && f <= 2:
		return SegmentHibernating
	}
	return SegmentOther
}

// LTVScore is the 0-100 composite of the RFM ranks plus an order-count bonus
func LTVScore(r, f, m, orders int) float64 {
	bonus := min(25, 5*orders)
	score := float64(15*r+10*f+15*m+bonus) / 2.25
	return math.Min(100, math.Max(0, score))
}

// ProjectedLTV estimates two years of future spend
func ProjectedLTV(avgOrderValue, avgGapDays float64) float64 {
	perYear := 1.0
	if avgGapDays > 0 {
		perYear = 365 / avgGapDays
	}
	return avgOrderValue * perYear * 2
}
