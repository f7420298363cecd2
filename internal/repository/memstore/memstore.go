// Package memstore is an in-process record store with the same query
// semantics as the PostgreSQL repositories.
package memstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"pacer/internal/models"
)

type spendKey struct {
	eventID    string
	campaignID string
	day        string
}

type Store struct {
	mu        sync.RWMutex
	events    map[string]models.Event
	orders    map[string]models.Order
	spend     map[spendKey]models.AdSpend
	snapshots map[string][]models.DailySnapshot
	curves    map[string]models.PacingCurve
	customers map[string]models.Customer
}

func New() *Store {
	return &Store{
		events:    make(map[string]models.Event),
		orders:    make(map[string]models.Order),
		spend:     make(map[spendKey]models.AdSpend),
		snapshots: make(map[string][]models.DailySnapshot),
		curves:    make(map[string]models.PacingCurve),
		customers: make(map[string]models.Customer),
	}
}

func (s *Store) UpsertEvent(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = *e
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) ListEvents(_ context.Context, f models.EventFilter) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, e := range s.events {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && e.Date.Before(f.From) {
			continue
		}
		if !f.Before.IsZero() && !e.Date.Before(f.Before) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpsertOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.EventID+"|"+o.ID] = *o
	return nil
}

func (s *Store) ListOrdersForEvent(_ context.Context, eventID string) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.EventID == eventID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ListCustomerOrders returns every order joined with its event, newest first
func (s *Store) ListCustomerOrders(_ context.Context) ([]models.CustomerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CustomerOrder, 0, len(s.orders))
	for _, o := range s.orders {
		co := models.CustomerOrder{Order: o}
		if e, ok := s.events[o.EventID]; ok {
			co.EventName = e.Name
			co.EventType = e.Category
			co.City = e.City
			co.EventDate = e.Date
		}
		out = append(out, co)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) EventTotals(_ context.Context, eventID string) (int, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tickets int
	var revenue float64
	for _, o := range s.orders {
		if o.EventID == eventID {
			tickets += o.TicketCount
			revenue += o.GrossAmount
		}
	}
	return tickets, revenue, nil
}

func (s *Store) UpsertAdSpend(_ context.Context, a *models.AdSpend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spend[spendKey{a.EventID, a.CampaignID, models.DateOf(a.SpendDate).Format("2006-01-02")}] = *a
	return nil
}

func (s *Store) ListAdSpend(_ context.Context, eventID string) ([]models.AdSpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AdSpend
	for k, a := range s.spend {
		if k.eventID == eventID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpendDate.Before(out[j].SpendDate) })
	return out, nil
}

func (s *Store) EventSpend(_ context.Context, eventID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for k, a := range s.spend {
		if k.eventID == eventID {
			total += a.Spend
		}
	}
	return total, nil
}

func (s *Store) ReplaceSnapshots(_ context.Context, eventID string, snaps []models.DailySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.DailySnapshot, len(snaps))
	copy(cp, snaps)
	s.snapshots[eventID] = cp
	return nil
}

func (s *Store) ListSnapshots(_ context.Context, eventID string) ([]models.DailySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]models.DailySnapshot, len(s.snapshots[eventID]))
	copy(cp, s.snapshots[eventID])
	sort.Slice(cp, func(i, j int) bool { return cp[i].DaysBeforeEvent > cp[j].DaysBeforeEvent })
	return cp, nil
}

// SnapshotNear returns the snapshot closest to days within tolerance, or nil
func (s *Store) SnapshotNear(_ context.Context, eventID string, days, tolerance int) (*models.DailySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.DailySnapshot
	bestDist := math.MaxInt
	for i := range s.snapshots[eventID] {
		snap := s.snapshots[eventID][i]
		dist := snap.DaysBeforeEvent - days
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolerance && dist < bestDist {
			best, bestDist = &snap, dist
		}
	}
	return best, nil
}

func (s *Store) SaveCurve(_ context.Context, c *models.PacingCurve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curves[c.Pattern] = *c
	return nil
}

func (s *Store) GetCurve(_ context.Context, pattern string) (*models.PacingCurve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.curves[pattern]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) ListCurves(_ context.Context) ([]models.PacingCurve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PacingCurve, 0, len(s.curves))
	for _, c := range s.curves {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out, nil
}

func (s *Store) UpsertCustomer(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.Email] = *c
	return nil
}

func (s *Store) GetCustomer(_ context.Context, email string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[models.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) ListHighValueCustomers(_ context.Context, f models.CustomerFilter) ([]models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Customer
	for _, c := range s.customers {
		if c.LTVScore < f.MinLTV {
			continue
		}
		if f.EventType != "" && c.EventTypes[f.EventType] == 0 {
			continue
		}
		if f.City != "" && c.Cities[f.City] == 0 {
			continue
		}
		if f.FavoriteCity != "" && c.FavoriteCity != f.FavoriteCity {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LTVScore != out[j].LTVScore {
			return out[i].LTVScore > out[j].LTVScore
		}
		return out[i].Email < out[j].Email
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CountHighValueCustomers(ctx context.Context, f models.CustomerFilter) (int, error) {
	out, err := s.ListHighValueCustomers(ctx, f)
	return len(out), err
}

func (s *Store) ListAtRiskCustomers(_ context.Context, minOrders, minDaysInactive int) ([]models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Customer
	for _, c := range s.customers {
		if c.TotalOrders >= minOrders && c.DaysSinceLastOrder >= minDaysInactive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalSpent > out[j].TotalSpent })
	return out, nil
}

func (s *Store) CountAtRiskCustomers(ctx context.Context, minOrders, minDaysInactive int) (int, error) {
	out, err := s.ListAtRiskCustomers(ctx, minOrders, minDaysInactive)
	return len(out), err
}

func (s *Store) SegmentCounts(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, c := range s.customers {
		if strings.TrimSpace(c.RFMSegment) != "" {
			counts[c.RFMSegment]++
		}
	}
	return counts, nil
}

// EventBuyers returns the distinct canonical buyer emails of the events, sorted
func (s *Store) EventBuyers(_ context.Context, eventIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := idSet(eventIDs)
	seen := make(map[string]bool)
	var out []string
	for _, o := range s.orders {
		email := models.NormalizeEmail(o.Email)
		if !ids[o.EventID] || email == "" || seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	sort.Strings(out)
	return out, nil
}

// SeriesAttendance groups the orders of the events by buyer, highest spend first
func (s *Store) SeriesAttendance(_ context.Context, eventIDs []string) ([]models.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := idSet(eventIDs)
	byEmail := make(map[string]*models.Attendance)
	editions := make(map[string]map[string]bool)
	for _, o := range s.orders {
		email := models.NormalizeEmail(o.Email)
		if !ids[o.EventID] || email == "" {
			continue
		}
		a, ok := byEmail[email]
		if !ok {
			a = &models.Attendance{Email: email}
			byEmail[email] = a
			editions[email] = make(map[string]bool)
		}
		a.Spent += o.GrossAmount
		if o.Timestamp.After(a.LastPurchase) {
			a.LastPurchase = o.Timestamp
		}
		editions[email][o.EventID] = true
	}
	out := make([]models.Attendance, 0, len(byEmail))
	for email, a := range byEmail {
		a.Editions = len(editions[email])
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Spent != out[j].Spent {
			return out[i].Spent > out[j].Spent
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

// GetCustomers returns the stored profiles among emails; unknown emails are skipped
func (s *Store) GetCustomers(_ context.Context, emails []string) ([]models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Customer
	for _, email := range emails {
		if c, ok := s.customers[models.NormalizeEmail(email)]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// OtherTypeBuyers lists buyers of city events whose type is set and differs
// from eventType, with the types they bought.
func (s *Store) OtherTypeBuyers(_ context.Context, city, eventType string) ([]models.TypeAttendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make(map[string]map[string]bool)
	for _, o := range s.orders {
		e, ok := s.events[o.EventID]
		if !ok || e.City != city || e.Category == "" || e.Category == eventType {
			continue
		}
		email := models.NormalizeEmail(o.Email)
		if email == "" {
			continue
		}
		if types[email] == nil {
			types[email] = make(map[string]bool)
		}
		types[email][e.Category] = true
	}
	out := make([]models.TypeAttendance, 0, len(types))
	for email, set := range types {
		ta := models.TypeAttendance{Email: email}
		for t := range set {
			ta.Types = append(ta.Types, t)
		}
		sort.Strings(ta.Types)
		out = append(out, ta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
