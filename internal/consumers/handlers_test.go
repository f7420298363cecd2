package consumers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pacer/internal/errors"
	"pacer/internal/metrics"
	"pacer/internal/models"
	"pacer/internal/repository/memstore"
	"pacer/internal/service"
)

type fakeRebuilder struct {
	calls int
	err   error
}

func (f *fakeRebuilder) Rebuild(ctx context.Context) (*models.RebuildResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.RebuildResult{Snapshots: 1}, nil
}

func newTestHandlers(t *testing.T) (*Handlers, *memstore.Store, *fakeRebuilder) {
	t.Helper()
	store := memstore.New()
	rebuilder := &fakeRebuilder{}
	return NewHandlers(service.NewIngestService(store), rebuilder), store, rebuilder
}

func TestProcessEventAndOrder(t *testing.T) {
	ctx := context.Background()
	h, store, _ := newTestHandlers(t)

	err := h.ProcessEvent(ctx, []byte(`{"event_id":"e1","name":"Harbor Wine Walk 2025","event_type":"wine","city":"Baltimore","event_date":"2025-06-21T17:00:00Z","capacity":400}`))
	require.NoError(t, err)

	e, err := store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, models.StatusUpcoming, e.Status)

	err = h.ProcessOrder(ctx, []byte(`{"order_id":"o1","event_id":"e1","email":" Fan@Example.com ","order_timestamp":"2025-06-11T09:30:00Z","ticket_count":2,"gross_amount":120}`))
	require.NoError(t, err)

	orders, err := store.ListOrdersForEvent(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "fan@example.com", orders[0].Email)
	assert.Equal(t, 10, orders[0].DaysBeforeEvent)
}

func TestProcessAdSpend(t *testing.T) {
	ctx := context.Background()
	h, store, _ := newTestHandlers(t)

	require.NoError(t, store.UpsertEvent(ctx, &models.Event{
		ID: "e1", Name: "Harbor Wine Walk 2025", Date: time.Date(2025, 6, 21, 17, 0, 0, 0, time.UTC),
		Capacity: 400, Status: models.StatusUpcoming,
	}))

	err := h.ProcessAdSpend(ctx, []byte(`{"event_id":"e1","campaign_id":"c1","spend_date":"2025-06-01T15:04:05Z","spend":42.5}`))
	require.NoError(t, err)

	spend, err := store.ListAdSpend(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, spend, 1)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), spend[0].SpendDate)
}

func TestProcess_Outcomes(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newTestHandlers(t)

	malformed := h.ProcessEvent(ctx, []byte(`{not json`))
	assert.Equal(t, metrics.IngestInvalid, Outcome(malformed, models.SubjectIngestEvent, 1))

	invalid := h.ProcessEvent(ctx, []byte(`{"event_id":"e1"}`))
	assert.ErrorIs(t, invalid, apperrors.ErrInvalidInput)
	assert.Equal(t, metrics.IngestInvalid, Outcome(invalid, models.SubjectIngestEvent, 2))

	// the event may still be in flight on its own subject
	orphan := h.ProcessOrder(ctx, []byte(`{"order_id":"o1","event_id":"missing","order_timestamp":"2025-06-11T09:30:00Z","ticket_count":1}`))
	assert.ErrorIs(t, orphan, apperrors.ErrNotFound)
	assert.Equal(t, metrics.IngestFailed, Outcome(orphan, models.SubjectIngestOrder, 3))

	noTickets := h.ProcessOrder(ctx, []byte(`{"order_id":"o2","event_id":"missing","order_timestamp":"2025-06-11T09:30:00Z","ticket_count":0}`))
	assert.ErrorIs(t, noTickets, apperrors.ErrInvalidInput)
	assert.Equal(t, metrics.IngestInvalid, Outcome(noTickets, models.SubjectIngestOrder, 4))

	assert.Equal(t, metrics.IngestOK, Outcome(nil, models.SubjectIngestOrder, 5))
}

func TestProcessCompleted(t *testing.T) {
	ctx := context.Background()
	h, _, rebuilder := newTestHandlers(t)

	require.NoError(t, h.ProcessCompleted(ctx, []byte(`{"source":"eventbrite","events":3,"orders":120}`)))
	assert.Equal(t, 1, rebuilder.calls)

	rebuilder.err = apperrors.ErrRebuildInProgress
	err := h.ProcessCompleted(ctx, []byte(`{"source":"eventbrite"}`))
	assert.ErrorIs(t, err, apperrors.ErrRebuildInProgress)
	assert.Equal(t, metrics.IngestFailed, Outcome(err, models.SubjectIngestCompleted, 5))

	err = h.ProcessCompleted(ctx, []byte(`[]`))
	assert.Equal(t, metrics.IngestInvalid, Outcome(err, models.SubjectIngestCompleted, 6))
	assert.Equal(t, 2, rebuilder.calls)
}
