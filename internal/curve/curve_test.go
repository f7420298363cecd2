package curve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacer/internal/models"
	"pacer/internal/repository/memstore"
)

var today = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPercentiles_SmallSamples(t *testing.T) {
	p := Percentiles([]float64{42, 40})
	assert.Equal(t, 41.0, p.Median)
	assert.Equal(t, 40.0, p.P25)
	assert.Equal(t, 42.0, p.P75)
	assert.Equal(t, 2, p.Samples)

	p = Percentiles([]float64{7})
	assert.Equal(t, models.CurvePoint{Median: 7, P25: 7, P75: 7, Samples: 1}, p)

	assert.Equal(t, models.CurvePoint{}, Percentiles(nil))
}

func TestPercentiles_OrderedForLargerSamples(t *testing.T) {
	samples := [][]float64{
		{4, 1, 3, 2},
		{10, 50, 20, 40, 30},
		{9, 1, 8, 2, 7, 3, 6, 4, 5},
		{5, 5, 5, 5, 5, 5},
		{0.5, 99, 12.25, 12.25, 60, 3, 3, 71},
	}
	for _, values := range samples {
		p := Percentiles(values)
		assert.Equal(t, len(values), p.Samples)
		assert.LessOrEqual(t, p.P25, p.Median, values)
		assert.LessOrEqual(t, p.Median, p.P75, values)
	}

	p := Percentiles([]float64{8, 1, 7, 2, 6, 3, 5, 4})
	assert.Equal(t, 2.0, p.P25)
	assert.Equal(t, 4.5, p.Median)
	assert.Equal(t, 7.0, p.P75)
}

func TestPercentiles_DoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Percentiles(values)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestIndex_Closest(t *testing.T) {
	c := &models.PacingCurve{Points: map[int]models.CurvePoint{
		60: {Median: 10},
		30: {Median: 40},
		14: {Median: 55},
		0:  {Median: 90},
	}}
	ix := NewIndex(c)

	cases := []struct {
		daysUntil int
		bucket    int
	}{
		{30, 30},
		{29, 30},
		{31, 60},
		{15, 30},
		{-3, 0},
		{90, 60},
	}
	for _, tc := range cases {
		point, bucket, ok := ix.Closest(tc.daysUntil)
		require.True(t, ok)
		assert.Equal(t, tc.bucket, bucket, "days until %d", tc.daysUntil)
		assert.Equal(t, c.Points[tc.bucket], point)
	}

	_, _, ok := NewIndex(&models.PacingCurve{}).Closest(10)
	assert.False(t, ok)
}

func seedEdition(t *testing.T, s *memstore.Store, id, name string, date time.Time, capacity, final int, snaps map[int]int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertEvent(ctx, &models.Event{
		ID: id, Name: name, Category: "beer", City: "Philadelphia",
		Date: date, Capacity: capacity, Status: models.StatusCompleted,
	}))
	require.NoError(t, s.UpsertOrder(ctx, &models.Order{
		ID: id + "-o1", EventID: id, Email: "fan@example.com",
		Timestamp: date.AddDate(0, 0, -10), TicketCount: final, GrossAmount: float64(final) * 25,
	}))
	var rows []models.DailySnapshot
	for days, tickets := range snaps {
		rows = append(rows, models.DailySnapshot{
			EventID: id, DaysBeforeEvent: days, TicketsCumulative: tickets,
			SellThroughPct: float64(tickets) / float64(capacity) * 100,
		})
	}
	require.NoError(t, s.ReplaceSnapshots(ctx, id, rows))
}

func TestBuilder_BuildAll(t *testing.T) {
	s := memstore.New()
	seedEdition(t, s, "e23", "City Beer Fest 2023", time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC), 1000, 950,
		map[int]int{30: 400, 0: 950})
	seedEdition(t, s, "e24", "City Beer Festival 2024", time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC), 1000, 900,
		map[int]int{30: 420, 0: 900})
	seedEdition(t, s, "w24", "Wine Walk 2024", time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), 0, 100,
		map[int]int{})
	// still on sale, must not contribute
	require.NoError(t, s.UpsertEvent(context.Background(), &models.Event{
		ID: "e25", Name: "City Beer Fest 2025", Date: today.AddDate(0, 0, 30), Capacity: 1000, Status: models.StatusUpcoming,
	}))

	b := NewBuilder(s, quietLogger(), 4).WithClock(func() time.Time { return today })
	n, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := s.GetCurve(context.Background(), "city_beer_fest")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []string{"City Beer Fest 2023", "City Beer Festival 2024"}, c.SourceEvents)
	assert.Equal(t, 2, c.SampleCount)
	assert.Equal(t, "beer", c.EventType)
	assert.InDelta(t, 92.5, c.AvgFinalSellThrough, 1e-9)
	assert.InDelta(t, 41.0, c.Points[30].Median, 1e-9)
	assert.Equal(t, 2, c.Points[30].Samples)
	assert.InDelta(t, 92.5, c.Points[0].Median, 1e-9)

	missing, err := s.GetCurve(context.Background(), "wine_walk")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBuilder_RebuildIsIdempotent(t *testing.T) {
	s := memstore.New()
	seedEdition(t, s, "e23", "City Beer Fest 2023", time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC), 1000, 950,
		map[int]int{30: 400})
	b := NewBuilder(s, quietLogger(), 1).WithClock(func() time.Time { return today })

	_, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	first, _ := s.GetCurve(context.Background(), "city_beer_fest")

	_, err = b.BuildAll(context.Background())
	require.NoError(t, err)
	second, _ := s.GetCurve(context.Background(), "city_beer_fest")

	assert.Equal(t, first.Points, second.Points)
	assert.Equal(t, first.SourceEvents, second.SourceEvents)
}

func TestBuilder_EventTypeFollowsNewestEdition(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedEdition(t, s, "m23", "Makers Market 2023", time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC), 500, 400,
		map[int]int{14: 200})
	seedEdition(t, s, "m24", "Makers Market 2024", time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC), 500, 450,
		map[int]int{14: 250})
	newest, err := s.GetEvent(ctx, "m24")
	require.NoError(t, err)
	newest.Category = "craft"
	require.NoError(t, s.UpsertEvent(ctx, newest))

	_, err = NewBuilder(s, quietLogger(), 2).WithClock(func() time.Time { return today }).BuildAll(ctx)
	require.NoError(t, err)

	c, err := s.GetCurve(ctx, "makers_market")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "craft", c.EventType)
}

// flakyStore fails snapshot reads for one event
type flakyStore struct {
	*memstore.Store
	failID string
}

func (f *flakyStore) ListSnapshots(ctx context.Context, eventID string) ([]models.DailySnapshot, error) {
	if eventID == f.failID {
		return nil, errors.New("connection reset by peer")
	}
	return f.Store.ListSnapshots(ctx, eventID)
}

func TestBuilder_FailingSeriesDoesNotStopOthers(t *testing.T) {
	s := memstore.New()
	seedEdition(t, s, "e23", "City Beer Fest 2023", time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC), 1000, 950,
		map[int]int{30: 400})
	seedEdition(t, s, "w23", "Harbor Wine Walk 2023", time.Date(2023, 6, 20, 0, 0, 0, 0, time.UTC), 400, 300,
		map[int]int{30: 100})
	seedEdition(t, s, "c23", "Cider Fest 2023", time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC), 300, 250,
		map[int]int{30: 90})

	store := &flakyStore{Store: s, failID: "w23"}
	n, err := NewBuilder(store, quietLogger(), 2).WithClock(func() time.Time { return today }).BuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for key, want := range map[string]bool{"city_beer_fest": true, "harbor_wine_walk": false, "cider_fest": true} {
		c, err := s.GetCurve(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, want, c != nil, key)
	}
}
