package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacer/internal/logger"
	"pacer/internal/models"
	"pacer/internal/repository/memstore"
	"pacer/internal/service"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakePortfolioCache struct {
	raw  []byte
	sets int
}

func (f *fakePortfolioCache) GetPortfolioRaw(context.Context, time.Time) ([]byte, error) {
	return f.raw, nil
}

func (f *fakePortfolioCache) SetPortfolio(_ context.Context, _ time.Time, v any, _ time.Duration) error {
	f.sets++
	return nil
}

type fakeSearcher struct {
	decision, query string
}

func (f *fakeSearcher) Search(_ context.Context, decision, query string, _ int) ([]*models.EventPacingResult, error) {
	f.decision, f.query = decision, query
	return []*models.EventPacingResult{{EventID: "e1", Decision: models.DecisionPush}}, nil
}

func setupRouter(t *testing.T, cache PortfolioCache, searcher Searcher) (*gin.Engine, *service.Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	services := service.NewServices(store, nil, service.Options{
		Workers:  2,
		CacheTTL: time.Minute,
		Logger:   logger.Discard(),
		Now:      func() time.Time { return now },
	})
	seed(t, services)

	r := gin.New()
	NewHandlers(services, cache, searcher, time.Minute).RegisterRoutes(r.Group("/api"))
	return r, services
}

func seed(t *testing.T, services *service.Services) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, services.Ingest.UpsertEvent(ctx, &models.Event{
		ID: "past", Name: "Harbor Wine Walk 2024", Category: "wine", City: "Baltimore",
		Date: time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC), Capacity: 50, Status: models.StatusCompleted,
	}))
	require.NoError(t, services.Ingest.UpsertEvent(ctx, &models.Event{
		ID: "next", Name: "Harbor Wine Walk 2025", Category: "wine", City: "Baltimore",
		Date: time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC), Capacity: 50,
	}))
	for i, o := range []models.Order{
		{ID: "o1", EventID: "past", Email: "fan@example.com", Timestamp: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), TicketCount: 10, GrossAmount: 300},
		{ID: "o2", EventID: "past", Email: "fan@example.com", Timestamp: time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC), TicketCount: 30, GrossAmount: 900},
		{ID: "o3", EventID: "next", Email: "new@example.com", Timestamp: time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC), TicketCount: 12, GrossAmount: 360},
	} {
		o := o
		require.NoError(t, services.Ingest.UpsertOrder(ctx, &o), "order %d", i)
	}
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListEvents(t *testing.T) {
	r, _ := setupRouter(t, nil, nil)

	w := do(r, http.MethodGet, "/api/events")
	assert.Equal(t, http.StatusOK, w.Code)
	var all []models.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	w = do(r, http.MethodGet, "/api/events?upcoming=true")
	var upcoming []models.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &upcoming))
	require.Len(t, upcoming, 1)
	assert.Equal(t, "next", upcoming[0].ID)
}

func TestEventPacing(t *testing.T) {
	r, _ := setupRouter(t, nil, nil)

	w := do(r, http.MethodGet, "/api/events/next/pacing")
	assert.Equal(t, http.StatusOK, w.Code)
	var res models.EventPacingResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "next", res.EventID)
	assert.Equal(t, 12, res.TicketsSold)
	assert.Equal(t, 9, res.DaysUntil)
	assert.NotEmpty(t, res.Decision)

	w = do(r, http.MethodGet, "/api/events/missing/pacing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventTargeting(t *testing.T) {
	r, _ := setupRouter(t, nil, nil)

	w := do(r, http.MethodPost, "/api/customers/score")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/events/next/targeting")
	assert.Equal(t, http.StatusOK, w.Code)
	var plan models.Targeting
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, "next", plan.EventID)
	assert.Equal(t, 9, plan.DaysUntil)
	assert.Equal(t, 1, plan.CurrentBuyers)
	assert.Equal(t, 12, plan.CurrentTickets)
	assert.Equal(t, []string{"past"}, plan.PastEditionIDs)

	require.NotNil(t, plan.RevenueGap)
	assert.Equal(t, 2024, plan.RevenueGap.LastYear)
	assert.Equal(t, 40, plan.RevenueGap.LastYearTickets)
	assert.Equal(t, 28, plan.RevenueGap.TicketsGap)
	assert.Equal(t, 840.0, plan.RevenueGap.RevenueGap)
	assert.Equal(t, 30.0, plan.RevenueGap.PctOfLastYear)
	assert.Equal(t, 1, plan.RepeatBuyers.TotalPastBuyers)
	assert.Equal(t, 0, plan.RepeatBuyers.Count)

	past := plan.Audiences.PastAttendees
	assert.Equal(t, 1, past.Count)
	require.Len(t, past.Customers, 1)
	assert.Equal(t, "fan@example.com", past.Customers[0].Email)
	assert.Equal(t, 1, past.Customers[0].PastEditions)
	assert.Equal(t, 1200.0, past.Customers[0].PastEventSpent)

	w = do(r, http.MethodGet, "/api/events/next/targeting?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, "/api/events/next/targeting?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, "/api/events/missing/targeting")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPortfolio_UsesSharedCache(t *testing.T) {
	cache := &fakePortfolioCache{}
	r, _ := setupRouter(t, cache, nil)

	w := do(r, http.MethodGet, "/api/portfolio")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, cache.sets)

	var resp models.PortfolioResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Portfolio.EventCount)
	assert.Equal(t, 12, resp.Portfolio.TotalTickets)
	assert.Equal(t, "2025-06-01", resp.AsOf)

	cache.raw = []byte(`{"cached":true}`)
	w = do(r, http.MethodGet, "/api/portfolio")
	assert.JSONEq(t, `{"cached":true}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/portfolio?fresh=true")
	assert.NotContains(t, w.Body.String(), "cached")
	assert.Equal(t, 2, cache.sets)
}

func TestSearchPacing(t *testing.T) {
	r, _ := setupRouter(t, nil, nil)
	w := do(r, http.MethodGet, "/api/pacing/search?decision=PUSH")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	searcher := &fakeSearcher{}
	r, _ = setupRouter(t, nil, searcher)
	w = do(r, http.MethodGet, "/api/pacing/search?decision=push&q=wine")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "push", searcher.decision)
	assert.Equal(t, "wine", searcher.query)

	w = do(r, http.MethodGet, "/api/pacing/search?size=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, "/api/pacing/search?size=1000")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRebuildAndCurves(t *testing.T) {
	r, _ := setupRouter(t, nil, nil)

	w := do(r, http.MethodPost, "/api/rebuild")
	assert.Equal(t, http.StatusOK, w.Code)
	var res models.RebuildResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 10, res.Snapshots)
	assert.Equal(t, 1, res.Curves)
	assert.Equal(t, 2, res.Customers)

	w = do(r, http.MethodGet, "/api/curves")
	var curves []models.PacingCurve
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &curves))
	require.Len(t, curves, 1)

	w = do(r, http.MethodGet, "/api/curves/"+curves[0].Pattern)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/curves/nothing_here")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/curves/rebuild")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"curves":1}`, w.Body.String())

	// with a curve in place the 2025 edition has a historical median
	w = do(r, http.MethodGet, "/api/events/next/pacing?fresh=1")
	var pacingRes models.EventPacingResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pacingRes))
	assert.InDelta(t, 20.0, pacingRes.HistoricalMedian, 1e-9)
	assert.Equal(t, []string{"Harbor Wine Walk 2024"}, pacingRes.ComparisonEvents)
}

func TestCustomers(t *testing.T) {
	r, _ := setupRouter(t, nil, nil)

	w := do(r, http.MethodPost, "/api/customers/score")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"customers":2}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/customers/FAN@example.com")
	assert.Equal(t, http.StatusOK, w.Code)
	var c models.Customer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "fan@example.com", c.Email)
	assert.Equal(t, 2, c.TotalOrders)
	assert.Equal(t, "wine", c.FavoriteEventType)

	w = do(r, http.MethodGet, "/api/customers/ghost@example.com")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/customers/segments")
	assert.Equal(t, http.StatusOK, w.Code)
	var segments map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &segments))
	total := 0
	for _, n := range segments {
		total += n
	}
	assert.Equal(t, 2, total)

	w = do(r, http.MethodGet, "/api/customers/high-value?min_ltv=0&event_type=wine&city=Baltimore")
	assert.Equal(t, http.StatusOK, w.Code)
	var hv []models.Customer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hv))
	assert.Len(t, hv, 2)

	w = do(r, http.MethodGet, "/api/customers/high-value?min_ltv=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, "/api/customers/high-value?limit=-3")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/customers/at-risk?min_orders=2&min_inactive=0")
	assert.Equal(t, http.StatusOK, w.Code)
	var atRisk []models.Customer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &atRisk))
	require.Len(t, atRisk, 1)
	assert.Equal(t, "fan@example.com", atRisk[0].Email)
}
