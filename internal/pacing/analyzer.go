// Package pacing compares live sales against historical curves and turns the
// comparison into a recommended action.
package pacing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"pacer/internal/curve"
	"pacer/internal/decision"
	"pacer/internal/models"
	"pacer/internal/pattern"
)

// Store is the read access the analyzer needs
type Store interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
	EventTotals(ctx context.Context, eventID string) (int, float64, error)
	EventSpend(ctx context.Context, eventID string) (float64, error)
	SnapshotNear(ctx context.Context, eventID string, days, tolerance int) (*models.DailySnapshot, error)
	ListCurves(ctx context.Context) ([]models.PacingCurve, error)
	CountHighValueCustomers(ctx context.Context, filter models.CustomerFilter) (int, error)
	CountAtRiskCustomers(ctx context.Context, minOrders, minDaysInactive int) (int, error)
}

const (
	// SnapshotTolerance is how far, in days, a past snapshot may sit from the
	// requested point and still count as "at the same days out".
	SnapshotTolerance = 2

	HighValueMinLTV       = 50
	HighValueLimit        = 1000
	AtRiskMinOrders       = 2
	AtRiskMinDaysInactive = 180
)

type Analyzer struct {
	store   Store
	logger  *slog.Logger
	workers int
	now     func() time.Time

	mu     sync.RWMutex
	curves map[string]*curve.Index
}

func NewAnalyzer(store Store, logger *slog.Logger, workers int) *Analyzer {
	if workers < 1 {
		workers = 1
	}
	return &Analyzer{store: store, logger: logger, workers: workers, now: time.Now}
}

func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// InvalidateCurves drops the cached curve set; the next analysis reloads it
func (a *Analyzer) InvalidateCurves() {
	a.mu.Lock()
	a.curves = nil
	a.mu.Unlock()
}

func (a *Analyzer) curveIndex(ctx context.Context) (map[string]*curve.Index, error) {
	a.mu.RLock()
	idx := a.curves
	a.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.curves != nil {
		return a.curves, nil
	}
	list, err := a.store.ListCurves(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pacing curves: %w", err)
	}
	idx = make(map[string]*curve.Index, len(list))
	for i := range list {
		idx[list[i].Pattern] = curve.NewIndex(&list[i])
	}
	a.curves = idx
	a.logger.Debug("Pacing curves loaded", "count", len(idx))
	return idx, nil
}

// AnalyzeEvent returns the pacing analysis of one event, or nil when the
// event does not exist.
func (a *Analyzer) AnalyzeEvent(ctx context.Context, eventID string) (*models.EventPacingResult, error) {
	e, err := a.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if e == nil {
		return nil, nil
	}
	return a.analyze(ctx, *e)
}

func (a *Analyzer) analyze(ctx context.Context, e models.Event) (*models.EventPacingResult, error) {
	today := models.DateOf(a.now())
	daysUntil := models.DaysBetweenDates(today, e.Date)

	tickets, revenue, err := a.store.EventTotals(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event totals: %w", err)
	}
	spend, err := a.store.EventSpend(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event spend: %w", err)
	}

	res := &models.EventPacingResult{
		EventID:     e.ID,
		EventName:   e.Name,
		EventDate:   e.Date.Format(time.RFC3339),
		Category:    e.Category,
		City:        e.City,
		DaysUntil:   daysUntil,
		TicketsSold: tickets,
		Capacity:    e.Capacity,
		Revenue:     revenue,
		AdSpend:     spend,
		SellThrough: sellThrough(tickets, e.Capacity),
		CAC:         cac(spend, tickets),
	}

	key := pattern.Key(e.Name)
	curves, err := a.curveIndex(ctx)
	if err != nil {
		return nil, err
	}
	var sources int
	if ix, ok := curves[key]; ok {
		if point, _, ok := ix.Closest(daysUntil); ok {
			res.HistoricalMedian = point.Median
			res.HistoricalRange = models.Range{Low: point.P25, High: point.P75}
			res.Pace = pace(res.SellThrough, point.Median)
			res.ComparisonEvents = ix.Curve().SourceEvents
			sources = len(res.ComparisonEvents)
			for _, name := range res.ComparisonEvents {
				if y, ok := pattern.Year(name); ok {
					res.ComparisonYears = append(res.ComparisonYears, y)
				}
			}
		}
	}

	// every other edition of the series gets a row; editions that have not
	// reached this point yet carry no AtDaysOut and do not feed the projection
	others, err := a.seriesEditions(ctx, key, models.EventFilter{}, map[string]bool{e.ID: true})
	if err != nil {
		return nil, err
	}
	for _, pe := range others {
		c, err := a.compare(ctx, []models.Event{pe}, daysUntil)
		if err != nil {
			return nil, err
		}
		res.HistoricalComparisons = append(res.HistoricalComparisons, c)
	}

	res.ProjectedFinal, res.ProjectedRange, res.Confidence = project(tickets, e.Capacity, res.HistoricalComparisons)

	a.classify(res, sources)

	if err := a.attachTargets(ctx, res, e); err != nil {
		return nil, err
	}
	return res, nil
}

func (a *Analyzer) classify(res *models.EventPacingResult, sources int) {
	out := decision.Classify(decision.Input{
		TicketsSold:      res.TicketsSold,
		Capacity:         res.Capacity,
		SellThrough:      res.SellThrough,
		Pace:             res.Pace,
		CAC:              res.CAC,
		DaysUntil:        res.DaysUntil,
		HistoricalMedian: res.HistoricalMedian,
		SourceCount:      sources,
	})
	res.Decision = out.Decision
	res.Urgency = out.Urgency
	res.Rationale = out.Rationale
	res.Actions = out.Actions
}

func (a *Analyzer) attachTargets(ctx context.Context, res *models.EventPacingResult, e models.Event) error {
	hv, err := a.store.CountHighValueCustomers(ctx, models.CustomerFilter{
		EventType: e.Category,
		City:      e.City,
		MinLTV:    HighValueMinLTV,
		Limit:     HighValueLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to count high-value customers: %w", err)
	}
	atRisk, err := a.store.CountAtRiskCustomers(ctx, AtRiskMinOrders, AtRiskMinDaysInactive)
	if err != nil {
		return fmt.Errorf("failed to count at-risk customers: %w", err)
	}
	res.HighValueTargets = hv
	res.ReactivationTargets = atRisk
	return nil
}

// pastEditions lists the events of a series dated before today, oldest first
func (a *Analyzer) pastEditions(ctx context.Context, key string, today time.Time, exclude map[string]bool) ([]models.Event, error) {
	return a.seriesEditions(ctx, key, models.EventFilter{Before: today}, exclude)
}

func (a *Analyzer) seriesEditions(ctx context.Context, key string, filter models.EventFilter, exclude map[string]bool) ([]models.Event, error) {
	events, err := a.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list series events: %w", err)
	}
	var out []models.Event
	for _, e := range events {
		if exclude[e.ID] || pattern.Key(e.Name) != key {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// compare summarizes the editions held on one past date, together with their
// combined state at daysUntil when snapshots exist.
func (a *Analyzer) compare(ctx context.Context, editions []models.Event, daysUntil int) (models.HistoricalComparison, error) {
	first := editions[0]
	c := models.HistoricalComparison{
		EventName: first.Name,
		EventDate: first.Date.Format("2006-01-02"),
		Year:      first.Date.Year(),
		DayOfWeek: first.Date.Weekday().String(),
	}

	var snap models.AtDaysOut
	found := 0
	for _, e := range editions {
		tickets, revenue, err := a.store.EventTotals(ctx, e.ID)
		if err != nil {
			return c, fmt.Errorf("failed to get totals for %s: %w", e.ID, err)
		}
		spend, err := a.store.EventSpend(ctx, e.ID)
		if err != nil {
			return c, fmt.Errorf("failed to get spend for %s: %w", e.ID, err)
		}
		c.FinalTickets += tickets
		c.FinalRevenue += revenue
		c.AdSpendTotal += spend
		c.Capacity = max(c.Capacity, e.Capacity)

		s, err := a.store.SnapshotNear(ctx, e.ID, daysUntil, SnapshotTolerance)
		if err != nil {
			return c, fmt.Errorf("failed to get snapshot for %s: %w", e.ID, err)
		}
		if s != nil {
			snap.Days = s.DaysBeforeEvent
			snap.Tickets += s.TicketsCumulative
			snap.Revenue += s.RevenueCumulative
			snap.AdSpend += s.AdSpendCumulative
			found++
		}
	}

	c.FinalSellThrough = round(sellThrough(c.FinalTickets, c.Capacity), 1)
	c.AdSpendTotal = round(c.AdSpendTotal, 2)
	if found > 0 {
		if found > 1 {
			snap.Days = daysUntil
		}
		snap.SellThrough = round(sellThrough(snap.Tickets, c.Capacity), 1)
		snap.AdSpend = round(snap.AdSpend, 2)
		c.AtDaysOut = &snap
	}
	return c, nil
}

// project extrapolates the final ticket count from each past edition's ratio
// of final tickets to tickets at the same point. The most recent edition is
// the primary estimate; all editions bound the range.
func project(tickets, capacity int, comps []models.HistoricalComparison) (int, models.TicketRange, float64) {
	fallback := models.TicketRange{Low: tickets, High: max(capacity, tickets)}
	if tickets <= 0 {
		return tickets, fallback, 0.5
	}

	var implied []int
	for _, c := range comps {
		if c.AtDaysOut == nil || c.AtDaysOut.Tickets <= 0 || c.FinalTickets <= 0 {
			continue
		}
		p := int(float64(tickets) / float64(c.AtDaysOut.Tickets) * float64(c.FinalTickets))
		implied = append(implied, max(tickets, p))
	}
	if len(implied) == 0 {
		return tickets, fallback, 0.5
	}

	rng := models.TicketRange{Low: implied[0], High: implied[0]}
	for _, p := range implied[1:] {
		rng.Low = min(rng.Low, p)
		rng.High = max(rng.High, p)
	}

	confidence := 0.6
	switch {
	case len(implied) >= 3:
		confidence = 0.9
	case len(implied) == 2:
		confidence = 0.75
	}
	return implied[len(implied)-1], rng, confidence
}

func sellThrough(tickets, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(tickets) / float64(capacity) * 100
}

func cac(spend float64, tickets int) float64 {
	if tickets <= 0 {
		return 0
	}
	return spend / float64(tickets)
}

func pace(sell, median float64) float64 {
	if median <= 0 {
		return 0
	}
	return (sell - median) / median * 100
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
