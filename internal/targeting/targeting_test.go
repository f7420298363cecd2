package targeting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacer/internal/models"
	"pacer/internal/repository/memstore"
	"pacer/internal/scoring"
)

var today = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memstore.Store
	planner *Planner
	seq     int
}

func newFixture(t *testing.T) *fixture {
	store := memstore.New()
	return &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		planner: NewPlanner(store, quietLogger()).WithClock(func() time.Time { return today }),
	}
}

func (f *fixture) event(id, name, category, city string, date time.Time, capacity int) {
	f.t.Helper()
	require.NoError(f.t, f.store.UpsertEvent(f.ctx, &models.Event{
		ID: id, Name: name, Category: category, City: city,
		Date: date, Capacity: capacity, Status: models.StatusUpcoming,
	}))
}

func (f *fixture) order(eventID, email string, tickets int, amount float64, at time.Time, daysOut int, promo string) {
	f.t.Helper()
	f.seq++
	o := &models.Order{
		ID: fmt.Sprintf("%s-%d", eventID, f.seq), EventID: eventID, Email: email,
		Timestamp: at, TicketCount: tickets, GrossAmount: amount, DaysBeforeEvent: daysOut,
	}
	if promo != "" {
		o.PromoCode = &promo
	}
	require.NoError(f.t, f.store.UpsertOrder(f.ctx, o))
}

func (f *fixture) customer(c models.Customer) {
	f.t.Helper()
	require.NoError(f.t, f.store.UpsertCustomer(f.ctx, &c))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 17, 0, 0, 0, time.UTC)
}

// seedHarbor stores three Harbor Wine Walk years, the current one held over a
// Saturday and Sunday, next to a beer event in the same city.
func seedHarbor(f *fixture) {
	f.event("w23", "Harbor Wine Walk 2023", "wine", "Baltimore", day(2023, 6, 14), 350)
	f.event("w24", "Harbor Wine Walk 2024", "wine", "Baltimore", day(2024, 6, 15), 400)
	f.event("w25-sat", "Harbor Wine Walk 2025", "wine", "Baltimore", day(2025, 6, 21), 400)
	f.event("w25-sun", "Harbor Wine Walk 2025", "wine", "Baltimore", day(2025, 6, 22), 400)
	f.event("bs24", "Baltimore Beer Social 2024", "beer", "Baltimore", day(2024, 9, 1), 200)

	f.order("w23", "alice@example.com", 2, 100, day(2023, 6, 1), 13, "")
	f.order("w24", "Alice@Example.com", 2, 120, day(2024, 6, 1), 14, "")
	f.order("w24", "bob@example.com", 1, 60, day(2024, 6, 2), 13, "")
	f.order("w24", "carol@example.com", 4, 240, day(2024, 6, 3), 12, "")
	f.order("w25-sat", "ivy@example.com", 3, 180, day(2025, 5, 20), 32, "EARLY")
	f.order("w25-sat", "ivy@example.com", 1, 60, day(2025, 5, 30), 22, "")
	f.order("w25-sun", "bob@example.com", 2, 130, day(2025, 5, 25), 28, "")
	f.order("bs24", "dave@example.com", 2, 50, day(2024, 8, 20), 12, "")
	f.order("bs24", "bob@example.com", 1, 25, day(2024, 8, 21), 11, "")

	f.customer(models.Customer{
		Email: "alice@example.com", TotalOrders: 2, TotalSpent: 220, DaysSinceLastOrder: 365,
		FavoriteCity: "Baltimore", Cities: map[string]int{"Baltimore": 2}, EventTypes: map[string]int{"wine": 2},
		RFMSegment: scoring.SegmentChampion, TimingSegment: scoring.TimingEarlyBird, LTVScore: 80,
	})
	f.customer(models.Customer{
		Email: "bob@example.com", TotalOrders: 3, TotalSpent: 215, DaysSinceLastOrder: 7,
		FavoriteCity: "Baltimore", Cities: map[string]int{"Baltimore": 3}, EventTypes: map[string]int{"wine": 2, "beer": 1},
		RFMSegment: scoring.SegmentLoyal, LTVScore: 50,
	})
	f.customer(models.Customer{
		Email: "dave@example.com", TotalOrders: 1, TotalSpent: 50, DaysSinceLastOrder: 285,
		Cities: map[string]int{"Baltimore": 1}, EventTypes: map[string]int{"beer": 1}, LTVScore: 40,
	})
	f.customer(models.Customer{
		Email: "erin@example.com", TotalOrders: 4, TotalSpent: 400, DaysSinceLastOrder: 30,
		FavoriteCity: "Baltimore", Cities: map[string]int{"Baltimore": 4}, EventTypes: map[string]int{"beer": 4}, LTVScore: 60,
	})
	f.customer(models.Customer{
		Email: "frank@example.com", TotalOrders: 1, TotalSpent: 90, DaysSinceLastOrder: 60,
		FavoriteCity: "Baltimore", Cities: map[string]int{"Baltimore": 1}, EventTypes: map[string]int{"wine": 1}, LTVScore: 30,
	})
	f.customer(models.Customer{
		Email: "gina@example.com", TotalOrders: 3, TotalSpent: 300, DaysSinceLastOrder: 200,
		FavoriteCity: "Annapolis", Cities: map[string]int{"Baltimore": 2, "Annapolis": 1}, EventTypes: map[string]int{"wine": 2, "cider": 1}, LTVScore: 10,
	})
	f.customer(models.Customer{
		Email: "hank@example.com", TotalOrders: 4, TotalSpent: 500, DaysSinceLastOrder: 300,
		FavoriteCity: "Washington", Cities: map[string]int{"Washington": 4}, EventTypes: map[string]int{"wine": 4}, LTVScore: 10,
	})
}

func emails(a models.Audience) []string {
	out := make([]string, len(a.Customers))
	for i, c := range a.Customers {
		out[i] = c.Email
	}
	return out
}

func TestResolve_CollectsSessionsOfTheRun(t *testing.T) {
	f := newFixture(t)
	seedHarbor(f)

	target, err := f.planner.Resolve(f.ctx, "w25-sat")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, []string{"w25-sat"}, target.SameDay)
	assert.Equal(t, []string{"w25-sat", "w25-sun"}, target.Siblings)
	assert.Equal(t, "Baltimore", target.City)
	assert.Equal(t, "wine", target.Category)

	missing, err := f.planner.Resolve(f.ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestResolve_SameDaySessionsShareSales(t *testing.T) {
	f := newFixture(t)
	f.event("early", "Brewery Tour 2025", "beer", "Denver", time.Date(2025, 7, 12, 12, 0, 0, 0, time.UTC), 100)
	f.event("late", "Brewery Tour 2025", "beer", "Denver", time.Date(2025, 7, 12, 18, 0, 0, 0, time.UTC), 100)
	f.event("other", "Cider Tour 2025", "cider", "Denver", time.Date(2025, 7, 12, 18, 0, 0, 0, time.UTC), 100)

	target, err := f.planner.Resolve(f.ctx, "early")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, []string{"early", "late"}, target.SameDay)
	assert.Equal(t, []string{"early", "late"}, target.Siblings)
}

func TestPlan_HarborWineWalk(t *testing.T) {
	f := newFixture(t)
	seedHarbor(f)

	target, err := f.planner.Resolve(f.ctx, "w25-sat")
	require.NoError(t, err)
	plan, err := f.planner.Plan(f.ctx, target, 0)
	require.NoError(t, err)

	assert.Equal(t, 20, plan.DaysUntil)
	assert.Equal(t, 2, plan.CurrentBuyers)
	assert.Equal(t, 4, plan.CurrentTickets)
	assert.Equal(t, 240.0, plan.CurrentRevenue)
	assert.Equal(t, 60.0, plan.AvgTicketPrice)
	assert.Equal(t, []string{"w23", "w24"}, plan.PastEditionIDs)

	assert.Equal(t, models.RepeatBuyers{
		Count: 1, TotalPastBuyers: 3, Rate: 33.3,
		LastYearBuyers: 3, ReboughtFromLastYear: 1, LastYearRebuyRate: 33.3,
	}, plan.RepeatBuyers)

	require.NotNil(t, plan.RevenueGap)
	assert.Equal(t, models.RevenueGap{
		LastYear: 2024, LastYearEvent: "Harbor Wine Walk 2024",
		LastYearTickets: 7, LastYearRevenue: 420, LastYearCapacity: 400,
		TicketsGap: 3, RevenueGap: 180, AvgTicketPrice: 60, PctOfLastYear: 57.1,
	}, *plan.RevenueGap)

	// bob bought the Sunday session, carol has no profile
	past := plan.Audiences.PastAttendees
	assert.Equal(t, 1, past.Count)
	assert.Equal(t, []string{"alice@example.com"}, emails(past))
	assert.Equal(t, 2, past.Customers[0].PastEditions)
	assert.Equal(t, 220.0, past.Customers[0].PastEventSpent)
	assert.Equal(t, 169.0, past.Customers[0].PriorityScore)
	require.NotNil(t, past.Customers[0].LastEventPurchase)
	assert.Equal(t, day(2024, 6, 1), *past.Customers[0].LastEventPurchase)
	assert.Equal(t, map[string]int{scoring.SegmentChampion: 1}, past.SegmentBreakdown)
	assert.Equal(t, models.TimingBucket{Count: 1, Overdue: true}, past.TimingBreakdown[scoring.TimingEarlyBird])

	assert.Equal(t, "Wine Lovers", plan.Audiences.TypeFans.Label)
	assert.Equal(t, []string{"frank@example.com"}, emails(plan.Audiences.TypeFans))
	assert.Equal(t, 90.0, plan.Audiences.TypeFans.HistoricalValue)
	assert.Equal(t, []string{"erin@example.com"}, emails(plan.Audiences.CityProspects))
	assert.Equal(t, []string{"gina@example.com"}, emails(plan.Audiences.AtRisk))

	cross := plan.Audiences.CrossSell
	assert.Equal(t, []string{"dave@example.com"}, emails(cross))
	assert.Equal(t, []string{"beer"}, cross.Customers[0].AttendedTypes)

	assert.Equal(t, models.QuickWin{
		Audience: "Champion & Loyal past attendees", EmailsToSend: 1,
		ExpectedTickets: 0, ExpectedRevenue: 0, ConversionRateUsed: 25,
	}, plan.QuickWin)

	require.Len(t, plan.TimingRecommendations, 1)
	assert.Equal(t, "now", plan.TimingRecommendations[0].Urgency)
	assert.Equal(t, 1, plan.TimingRecommendations[0].Count)

	assert.Equal(t, []models.PromoCodeStat{
		{Code: "EARLY", Uses: 1, Tickets: 3, Revenue: 180, AvgOrder: 180, UniqueBuyers: 1},
	}, plan.PromoCodes)
	assert.Equal(t, []models.VelocityBucket{
		{DaysBeforeEvent: 32, Orders: 1, Tickets: 3, Revenue: 180},
		{DaysBeforeEvent: 22, Orders: 1, Tickets: 1, Revenue: 60},
	}, plan.Velocity)
}

func TestPlan_MergedDayUsesConstituents(t *testing.T) {
	f := newFixture(t)
	seedHarbor(f)

	target, err := f.planner.ResolveMerged(f.ctx, &models.EventPacingResult{
		EventID: "harbor_wine_walk_2025-2025-06-22", EventName: "Harbor Wine Walk 2025 (Sun)",
		Capacity: 400, ConstituentEventIDs: []string{"w25-sun"},
	})
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, []string{"w25-sun"}, target.SameDay)
	assert.Equal(t, []string{"w25-sun", "w25-sat"}, target.Siblings)

	plan, err := f.planner.Plan(f.ctx, target, 0)
	require.NoError(t, err)
	assert.Equal(t, "harbor_wine_walk_2025-2025-06-22", plan.EventID)
	assert.Equal(t, 2, plan.CurrentTickets)
	assert.Equal(t, 130.0, plan.CurrentRevenue)
	assert.Equal(t, 2, plan.CurrentBuyers)
	assert.Equal(t, []string{"alice@example.com"}, emails(plan.Audiences.PastAttendees))
	assert.Empty(t, plan.PromoCodes)

	none, err := f.planner.ResolveMerged(f.ctx, &models.EventPacingResult{EventID: "x"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPlan_FirstEditionHasNoHistory(t *testing.T) {
	f := newFixture(t)
	f.event("pc25", "Pier Cider Social 2025", "cider", "Annapolis", day(2025, 7, 1), 150)

	target, err := f.planner.Resolve(f.ctx, "pc25")
	require.NoError(t, err)
	plan, err := f.planner.Plan(f.ctx, target, 0)
	require.NoError(t, err)

	assert.Nil(t, plan.RevenueGap)
	assert.Empty(t, plan.PastEditionIDs)
	assert.Equal(t, 0, plan.Audiences.PastAttendees.Count)
	assert.NotNil(t, plan.Audiences.PastAttendees.Customers)
	assert.Empty(t, plan.Audiences.PastAttendees.Customers)
	assert.NotNil(t, plan.TimingRecommendations)
	assert.Empty(t, plan.TimingRecommendations)
	assert.Equal(t, 0.0, plan.QuickWin.ExpectedRevenue)
}

func TestPriorityScore(t *testing.T) {
	tests := []struct {
		name      string
		customer  models.Customer
		editions  int
		daysUntil int
		want      float64
	}{
		{"champion early bird in window", models.Customer{RFMSegment: scoring.SegmentChampion, TimingSegment: scoring.TimingEarlyBird, LTVScore: 80}, 2, 20, 169},
		{"early bird not yet in window", models.Customer{RFMSegment: scoring.SegmentChampion, TimingSegment: scoring.TimingEarlyBird, LTVScore: 80}, 2, 50, 144},
		{"last minute close to the day", models.Customer{RFMSegment: scoring.SegmentHibernating, TimingSegment: scoring.TimingLastMinute}, 1, 5, 40},
		{"unknown segment counts as other", models.Customer{RFMSegment: "mystery", LTVScore: 10}, 0, 90, 43},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PriorityScore(tt.customer, tt.editions, tt.daysUntil), 0.001)
		})
	}
}

func TestAudience_PagesCustomersButCountsAll(t *testing.T) {
	list := []models.Prospect{
		{Customer: models.Customer{Email: "a@example.com", TotalSpent: 10}},
		{Customer: models.Customer{Email: "b@example.com", TotalSpent: 20.5}},
		{Customer: models.Customer{Email: "c@example.com", TotalSpent: 30}},
	}
	a := audience("Label", "Description", list, 2)
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, 60.5, a.HistoricalValue)
	assert.Len(t, a.Customers, 2)
}

func TestTimingRecommendations_FinalPush(t *testing.T) {
	past := pastAttendeeAudience([]models.Prospect{
		{Customer: models.Customer{Email: "a@example.com", TimingSegment: scoring.TimingLastMinute}},
		{Customer: models.Customer{Email: "b@example.com", TimingSegment: scoring.TimingPlanner}},
	}, 7, 10)
	assert.True(t, past.TimingBreakdown[scoring.TimingPlanner].Overdue)
	assert.False(t, past.TimingBreakdown[scoring.TimingLastMinute].Overdue)

	recs := timingRecommendations(past, 7)
	require.Len(t, recs, 2)
	assert.Equal(t, "critical", recs[0].Urgency)
	assert.Equal(t, 2, recs[0].Count)
	assert.Equal(t, 1, recs[1].Count)
}

func TestQuickWin_RatesAndDefaults(t *testing.T) {
	past := models.Audience{Count: 40}

	qw := quickWin(past, 0, 0)
	assert.Equal(t, 40, qw.EmailsToSend)
	assert.Equal(t, 15.0, qw.ConversionRateUsed)

	qw = quickWin(past, 20, 0)
	assert.Equal(t, 25.0, qw.ConversionRateUsed)
	assert.Equal(t, 10, qw.ExpectedTickets)
	assert.Equal(t, 450.0, qw.ExpectedRevenue)
}

func TestPromoStats(t *testing.T) {
	code := func(s string) *string { return &s }
	stats := PromoStats([]models.Order{
		{Email: "a@example.com", TicketCount: 2, GrossAmount: 50, PromoCode: code("SPRING")},
		{Email: "A@example.com", TicketCount: 1, GrossAmount: 25, PromoCode: code("SPRING")},
		{Email: "b@example.com", TicketCount: 4, GrossAmount: 90, PromoCode: code("VIP")},
		{Email: "c@example.com", TicketCount: 1, GrossAmount: 30, PromoCode: code("")},
		{Email: "d@example.com", TicketCount: 1, GrossAmount: 30},
	})
	assert.Equal(t, []models.PromoCodeStat{
		{Code: "SPRING", Uses: 2, Tickets: 3, Revenue: 75, AvgOrder: 37.5, UniqueBuyers: 1},
		{Code: "VIP", Uses: 1, Tickets: 4, Revenue: 90, AvgOrder: 90, UniqueBuyers: 1},
	}, stats)
	assert.Empty(t, PromoStats(nil))
}

func TestVelocity(t *testing.T) {
	buckets := Velocity([]models.Order{
		{DaysBeforeEvent: 3, TicketCount: 1, GrossAmount: 30},
		{DaysBeforeEvent: 10, TicketCount: 2, GrossAmount: 60},
		{DaysBeforeEvent: 3, TicketCount: 2, GrossAmount: 55.5},
	})
	assert.Equal(t, []models.VelocityBucket{
		{DaysBeforeEvent: 10, Orders: 1, Tickets: 2, Revenue: 60},
		{DaysBeforeEvent: 3, Orders: 2, Tickets: 3, Revenue: 85.5},
	}, buckets)
}
