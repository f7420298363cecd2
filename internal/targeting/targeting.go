// Package targeting turns an event's sales and its series history into
// outreach audiences: lapsed past attendees, local and category fans,
// win-back candidates and cross-sell prospects.
package targeting

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"pacer/internal/models"
	"pacer/internal/pattern"
)

// Store is the record access the planner needs
type Store interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
	EventTotals(ctx context.Context, eventID string) (int, float64, error)
	ListOrdersForEvent(ctx context.Context, eventID string) ([]models.Order, error)
	EventBuyers(ctx context.Context, eventIDs []string) ([]string, error)
	SeriesAttendance(ctx context.Context, eventIDs []string) ([]models.Attendance, error)
	GetCustomers(ctx context.Context, emails []string) ([]models.Customer, error)
	OtherTypeBuyers(ctx context.Context, city, eventType string) ([]models.TypeAttendance, error)
	ListHighValueCustomers(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, error)
	ListAtRiskCustomers(ctx context.Context, minOrders, minDaysInactive int) ([]models.Customer, error)
}

const (
	// SiblingWindowDays is how far apart two sessions of one run may be
	SiblingWindowDays = 3

	ProspectMinLTV    = 20
	ProspectLimit     = 1000
	PastAttendeeLimit = 5000
	CrossSellLimit    = 2000
	DefaultPageSize   = 100
	MaxPageSize       = 1000
)

// Target is the set of events one targeting request covers. Sales count over
// SameDay; anyone who bought any of Siblings is already a buyer.
type Target struct {
	ID         string
	Name       string
	Date       time.Time
	Category   string
	City       string
	Capacity   int
	SeriesName string
	SameDay    []string
	Siblings   []string
}

type Planner struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewPlanner(store Store, logger *slog.Logger) *Planner {
	return &Planner{store: store, logger: logger, now: time.Now}
}

func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// Resolve builds the target of a stored event, or returns nil when the id is
// not a stored event.
func (p *Planner) Resolve(ctx context.Context, eventID string) (*Target, error) {
	e, err := p.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if e == nil {
		return nil, nil
	}
	t := &Target{
		ID:         e.ID,
		Name:       e.Name,
		Date:       e.Date,
		Category:   e.Category,
		City:       e.City,
		Capacity:   e.Capacity,
		SeriesName: e.Name,
	}
	if err := p.collectSessions(ctx, t, *e, []string{e.ID}); err != nil {
		return nil, err
	}
	return t, nil
}

// ResolveMerged builds the target of a merged session day from the result
// that carries its constituent events.
func (p *Planner) ResolveMerged(ctx context.Context, r *models.EventPacingResult) (*Target, error) {
	if len(r.ConstituentEventIDs) == 0 {
		return nil, nil
	}
	first, err := p.store.GetEvent(ctx, r.ConstituentEventIDs[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", r.ConstituentEventIDs[0], err)
	}
	if first == nil {
		return nil, nil
	}
	t := &Target{
		ID:         r.EventID,
		Name:       r.EventName,
		Date:       first.Date,
		Category:   first.Category,
		City:       first.City,
		Capacity:   r.Capacity,
		SeriesName: first.Name,
	}
	if err := p.collectSessions(ctx, t, *first, r.ConstituentEventIDs); err != nil {
		return nil, err
	}
	return t, nil
}

// collectSessions fills SameDay and Siblings with every edition of the series
// held within SiblingWindowDays of anchor.
func (p *Planner) collectSessions(ctx context.Context, t *Target, anchor models.Event, sameDay []string) error {
	day := models.DateOf(anchor.Date)
	events, err := p.store.ListEvents(ctx, models.EventFilter{
		From:   day.AddDate(0, 0, -SiblingWindowDays),
		Before: day.AddDate(0, 0, SiblingWindowDays+1),
	})
	if err != nil {
		return fmt.Errorf("failed to list sibling sessions: %w", err)
	}

	t.SameDay = append([]string(nil), sameDay...)
	seen := make(map[string]bool, len(sameDay))
	for _, id := range sameDay {
		seen[id] = true
	}
	t.Siblings = append([]string(nil), sameDay...)

	key := pattern.Key(anchor.Name)
	for _, e := range events {
		if seen[e.ID] || pattern.Key(e.Name) != key {
			continue
		}
		seen[e.ID] = true
		t.Siblings = append(t.Siblings, e.ID)
		// a merged day lists its sessions explicitly
		if len(sameDay) == 1 && models.DateOf(e.Date).Equal(day) {
			t.SameDay = append(t.SameDay, e.ID)
		}
	}
	return nil
}

// Plan builds the full outreach plan for t. pageSize caps the customers
// listed per audience; counts and values always cover the whole audience.
func (p *Planner) Plan(ctx context.Context, t *Target, pageSize int) (*models.Targeting, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	today := models.DateOf(p.now())
	daysUntil := models.DaysBetweenDates(today, t.Date)

	out := &models.Targeting{
		EventID:             t.ID,
		EventName:           t.Name,
		EventDate:           t.Date.Format(time.RFC3339),
		Category:            t.Category,
		City:                t.City,
		Capacity:            t.Capacity,
		ConstituentEventIDs: t.SameDay,
		SiblingEventIDs:     t.Siblings,
		DaysUntil:           daysUntil,
	}

	buyers, err := p.store.EventBuyers(ctx, t.Siblings)
	if err != nil {
		return nil, fmt.Errorf("failed to load current buyers: %w", err)
	}
	current := toSet(buyers)
	out.CurrentBuyers = len(current)

	for _, id := range t.SameDay {
		tickets, revenue, err := p.store.EventTotals(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get totals for %s: %w", id, err)
		}
		out.CurrentTickets += tickets
		out.CurrentRevenue += revenue
	}
	avgPrice := 0.0
	if out.CurrentTickets > 0 {
		avgPrice = out.CurrentRevenue / float64(out.CurrentTickets)
	}
	out.AvgTicketPrice = round(avgPrice, 2)
	out.CurrentRevenue = round(out.CurrentRevenue, 2)

	past, err := p.pastEditions(ctx, t)
	if err != nil {
		return nil, err
	}
	var pastIDs []string
	for _, e := range past {
		pastIDs = append(pastIDs, e.ID)
	}
	out.PastEditionIDs = pastIDs

	if err := p.history(ctx, out, past, current, avgPrice); err != nil {
		return nil, err
	}

	lapsed, err := p.lapsedAttendees(ctx, pastIDs, current, daysUntil)
	if err != nil {
		return nil, err
	}
	out.Audiences.PastAttendees = pastAttendeeAudience(lapsed, daysUntil, pageSize)

	listed := make(map[string]bool, len(current)+len(lapsed))
	for email := range current {
		listed[email] = true
	}
	for _, pr := range lapsed {
		listed[pr.Email] = true
	}

	if err := p.prospects(ctx, out, t, listed, pageSize); err != nil {
		return nil, err
	}

	cross, err := p.crossSell(ctx, t, current)
	if err != nil {
		return nil, err
	}
	out.Audiences.CrossSell = audience("Cross-Sell Prospects",
		fmt.Sprintf("Customers who bought other kinds of events in %s but not this one", orDefault(t.City, "this city")),
		cross, pageSize)

	out.QuickWin = quickWin(out.Audiences.PastAttendees, out.RepeatBuyers.Rate, avgPrice)
	out.TimingRecommendations = timingRecommendations(out.Audiences.PastAttendees, daysUntil)

	if err := p.salesMix(ctx, out, t.SameDay); err != nil {
		return nil, err
	}

	p.logger.Debug("Targeting planned", "event_id", t.ID,
		"past_attendees", out.Audiences.PastAttendees.Count,
		"city", out.Audiences.CityProspects.Count,
		"type", out.Audiences.TypeFans.Count,
		"at_risk", out.Audiences.AtRisk.Count,
		"cross_sell", out.Audiences.CrossSell.Count)
	return out, nil
}

// pastEditions lists the earlier editions of the series across seasons,
// leaving out the sessions of the target's own run.
func (p *Planner) pastEditions(ctx context.Context, t *Target) ([]models.Event, error) {
	events, err := p.store.ListEvents(ctx, models.EventFilter{Before: models.DateOf(t.Date)})
	if err != nil {
		return nil, fmt.Errorf("failed to list past editions: %w", err)
	}
	skip := toSet(t.Siblings)
	series := pattern.Normalize(t.SeriesName, false)

	var out []models.Event
	for _, e := range events {
		if skip[e.ID] || pattern.Normalize(e.Name, false) != series {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// history fills the repeat-buyer rates and the revenue gap against the most
// recent past edition. Editions held on the same day count as one.
func (p *Planner) history(ctx context.Context, out *models.Targeting, past []models.Event, current map[string]bool, avgPrice float64) error {
	var days []time.Time
	byDay := make(map[time.Time][]models.Event)
	for _, e := range past {
		d := models.DateOf(e.Date)
		if _, ok := byDay[d]; !ok {
			days = append(days, d)
		}
		byDay[d] = append(byDay[d], e)
	}

	allPast := make(map[string]bool)
	var last *models.RevenueGap
	var lastBuyers map[string]bool
	for _, d := range days {
		group := byDay[d]
		ids := make([]string, len(group))
		capacity := 0
		for i, e := range group {
			ids[i] = e.ID
			capacity = max(capacity, e.Capacity)
		}
		buyers, err := p.store.EventBuyers(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load buyers of %s: %w", d.Format("2006-01-02"), err)
		}
		for _, b := range buyers {
			allPast[b] = true
		}

		// first day of the latest year stands for last year
		if last != nil && d.Year() <= last.LastYear {
			continue
		}
		gap := &models.RevenueGap{LastYear: d.Year(), LastYearEvent: group[0].Name, LastYearCapacity: capacity}
		for _, id := range ids {
			tickets, revenue, err := p.store.EventTotals(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get totals for %s: %w", id, err)
			}
			gap.LastYearTickets += tickets
			gap.LastYearRevenue += revenue
		}
		last, lastBuyers = gap, toSet(buyers)
	}

	repeat := 0
	for email := range current {
		if allPast[email] {
			repeat++
		}
	}
	out.RepeatBuyers = models.RepeatBuyers{
		Count:           repeat,
		TotalPastBuyers: len(allPast),
		Rate:            round(pct(repeat, len(allPast)), 1),
		LastYearBuyers:  len(lastBuyers),
	}
	for email := range lastBuyers {
		if current[email] {
			out.RepeatBuyers.ReboughtFromLastYear++
		}
	}
	out.RepeatBuyers.LastYearRebuyRate = round(pct(out.RepeatBuyers.ReboughtFromLastYear, len(lastBuyers)), 1)

	if last == nil {
		return nil
	}
	price := avgPrice
	if price == 0 && last.LastYearTickets > 0 {
		price = last.LastYearRevenue / float64(last.LastYearTickets)
	}
	last.TicketsGap = max(0, last.LastYearTickets-out.CurrentTickets)
	last.RevenueGap = round(math.Max(0, last.LastYearRevenue-out.CurrentRevenue), 2)
	last.LastYearRevenue = round(last.LastYearRevenue, 2)
	last.AvgTicketPrice = round(price, 2)
	last.PctOfLastYear = round(pct(out.CurrentTickets, last.LastYearTickets), 1)
	out.RevenueGap = last
	return nil
}

// salesMix adds promo code usage and the purchase timing of the target's sales
func (p *Planner) salesMix(ctx context.Context, out *models.Targeting, eventIDs []string) error {
	var orders []models.Order
	for _, id := range eventIDs {
		list, err := p.store.ListOrdersForEvent(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list orders for %s: %w", id, err)
		}
		orders = append(orders, list...)
	}
	out.PromoCodes = PromoStats(orders)
	out.Velocity = Velocity(orders)
	return nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func pct(n, of int) float64 {
	if of <= 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
