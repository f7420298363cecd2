package snapshot

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

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestBuild_CumulativeWalk(t *testing.T) {
	e := models.Event{ID: "ev1", Date: day(2024, 5, 10, 19), Capacity: 200}
	orders := []models.Order{
		{ID: "a", EventID: "ev1", Timestamp: day(2024, 5, 7, 9), TicketCount: 2, GrossAmount: 50},
		{ID: "b", EventID: "ev1", Timestamp: day(2024, 5, 7, 21), TicketCount: 3, GrossAmount: 75},
		{ID: "c", EventID: "ev1", Timestamp: day(2024, 5, 9, 12), TicketCount: 5, GrossAmount: 125},
	}
	spend := []models.AdSpend{
		{EventID: "ev1", CampaignID: "c1", SpendDate: day(2024, 5, 1, 0), Spend: 10},
		{EventID: "ev1", CampaignID: "c1", SpendDate: day(2024, 5, 8, 0), Spend: 20},
	}

	snaps := Build(e, orders, spend)
	require.Len(t, snaps, 4)

	assert.Equal(t, 3, snaps[0].DaysBeforeEvent)
	assert.Equal(t, 5, snaps[0].TicketsCumulative)
	assert.Equal(t, 2, snaps[0].OrdersThatDay)
	assert.InDelta(t, 2.5, snaps[0].SellThroughPct, 1e-9)
	assert.Equal(t, 10.0, snaps[0].AdSpendCumulative)

	// a day without sales still carries the running totals
	assert.Equal(t, 2, snaps[1].DaysBeforeEvent)
	assert.Equal(t, 0, snaps[1].TicketsThatDay)
	assert.Equal(t, 5, snaps[1].TicketsCumulative)
	assert.Equal(t, 30.0, snaps[1].AdSpendCumulative)

	assert.Equal(t, 10, snaps[2].TicketsCumulative)
	assert.Equal(t, 250.0, snaps[2].RevenueCumulative)

	assert.Equal(t, 0, snaps[3].DaysBeforeEvent)
	assert.Equal(t, day(2024, 5, 10, 0), snaps[3].SnapshotDate)
	assert.InDelta(t, 5.0, snaps[3].SellThroughPct, 1e-9)
}

func TestBuild_ZeroCapacity(t *testing.T) {
	e := models.Event{ID: "ev1", Date: day(2024, 5, 10, 19)}
	snaps := Build(e, []models.Order{{Timestamp: day(2024, 5, 10, 8), TicketCount: 4}}, nil)
	require.Len(t, snaps, 1)
	assert.Equal(t, 0.0, snaps[0].SellThroughPct)
	assert.Equal(t, 4, snaps[0].TicketsCumulative)
}

func TestBuild_NoOrders(t *testing.T) {
	assert.Nil(t, Build(models.Event{ID: "ev1"}, nil, nil))
}

func TestBuilder_RebuildAll(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.UpsertEvent(ctx, &models.Event{
		ID: "done", Name: "Cider Fest 2024", Date: day(2024, 10, 5, 18), Capacity: 100, Status: models.StatusCompleted,
	}))
	require.NoError(t, s.UpsertEvent(ctx, &models.Event{
		ID: "live", Name: "Cider Fest 2025", Date: day(2025, 10, 4, 18), Capacity: 100, Status: models.StatusUpcoming,
	}))
	require.NoError(t, s.UpsertOrder(ctx, &models.Order{ID: "o1", EventID: "done", Timestamp: day(2024, 10, 3, 10), TicketCount: 2}))
	require.NoError(t, s.UpsertOrder(ctx, &models.Order{ID: "o2", EventID: "live", Timestamp: day(2025, 9, 1, 10), TicketCount: 2}))

	b := NewBuilder(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := b.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snaps, err := s.ListSnapshots(ctx, "done")
	require.NoError(t, err)
	assert.Len(t, snaps, 3)

	live, err := s.ListSnapshots(ctx, "live")
	require.NoError(t, err)
	assert.Empty(t, live)
}

// flakyStore fails order reads for one event
type flakyStore struct {
	*memstore.Store
	failID string
}

func (f *flakyStore) ListOrdersForEvent(ctx context.Context, eventID string) ([]models.Order, error) {
	if eventID == f.failID {
		return nil, errors.New("connection reset by peer")
	}
	return f.Store.ListOrdersForEvent(ctx, eventID)
}

func TestBuilder_RebuildAllSkipsFailingEvent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	for _, id := range []string{"cider24", "wine24"} {
		require.NoError(t, s.UpsertEvent(ctx, &models.Event{
			ID: id, Name: id, Date: day(2024, 10, 5, 18), Capacity: 100, Status: models.StatusCompleted,
		}))
		require.NoError(t, s.UpsertOrder(ctx, &models.Order{ID: id + "-o1", EventID: id, Timestamp: day(2024, 10, 3, 10), TicketCount: 2}))
	}

	b := NewBuilder(&flakyStore{Store: s, failID: "wine24"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := b.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	good, err := s.ListSnapshots(ctx, "cider24")
	require.NoError(t, err)
	assert.Len(t, good, 3)

	bad, err := s.ListSnapshots(ctx, "wine24")
	require.NoError(t, err)
	assert.Empty(t, bad)
}
