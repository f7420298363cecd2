// Package snapshot materializes the day-by-day cumulative sales history of
// completed events from their orders.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pacer/internal/models"
)

type Store interface {
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
	ListOrdersForEvent(ctx context.Context, eventID string) ([]models.Order, error)
	ListAdSpend(ctx context.Context, eventID string) ([]models.AdSpend, error)
	ReplaceSnapshots(ctx context.Context, eventID string, snaps []models.DailySnapshot) error
}

type Builder struct {
	store  Store
	logger *slog.Logger
}

func NewBuilder(store Store, logger *slog.Logger) *Builder {
	return &Builder{store: store, logger: logger}
}

// RebuildAll replaces the snapshots of every completed event and returns the
// number of snapshot rows written. Events that fail are logged and skipped.
func (b *Builder) RebuildAll(ctx context.Context) (int, error) {
	events, err := b.store.ListEvents(ctx, models.EventFilter{Status: models.StatusCompleted})
	if err != nil {
		return 0, fmt.Errorf("failed to list completed events: %w", err)
	}

	written := 0
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := b.rebuildEvent(ctx, e)
		if err != nil {
			b.logger.Warn("Skipping snapshots for event", "event_id", e.ID, "error", err)
			continue
		}
		written += n
	}

	b.logger.Info("Daily snapshots rebuilt", "events", len(events), "snapshots", written)
	return written, nil
}

func (b *Builder) rebuildEvent(ctx context.Context, e models.Event) (int, error) {
	orders, err := b.store.ListOrdersForEvent(ctx, e.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load orders: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}
	spend, err := b.store.ListAdSpend(ctx, e.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load ad spend: %w", err)
	}

	snaps := Build(e, orders, spend)
	if err := b.store.ReplaceSnapshots(ctx, e.ID, snaps); err != nil {
		return 0, fmt.Errorf("failed to save snapshots: %w", err)
	}
	return len(snaps), nil
}

type dayTotals struct {
	tickets int
	revenue float64
	orders  int
}

// Build walks from the first order day through the event day and emits one
// cumulative snapshot per calendar day, including days without sales.
func Build(e models.Event, orders []models.Order, spend []models.AdSpend) []models.DailySnapshot {
	if len(orders) == 0 {
		return nil
	}

	daily := make(map[time.Time]*dayTotals)
	first := models.DateOf(orders[0].Timestamp)
	for _, o := range orders {
		day := models.DateOf(o.Timestamp)
		if day.Before(first) {
			first = day
		}
		t, ok := daily[day]
		if !ok {
			t = &dayTotals{}
			daily[day] = t
		}
		tickets := o.TicketCount
		if tickets < 1 {
			tickets = 1
		}
		t.tickets += tickets
		t.revenue += o.GrossAmount
		t.orders++
	}

	spendByDay := make(map[time.Time]float64)
	for _, s := range spend {
		spendByDay[models.DateOf(s.SpendDate)] += s.Spend
	}
	// spend booked before the first sale still counts toward the running total
	var spendCum float64
	for day, amount := range spendByDay {
		if day.Before(first) {
			spendCum += amount
		}
	}

	eventDay := models.DateOf(e.Date)
	var out []models.DailySnapshot
	var ticketsCum int
	var revenueCum float64
	for day := first; !day.After(eventDay); day = day.AddDate(0, 0, 1) {
		var t dayTotals
		if d, ok := daily[day]; ok {
			t = *d
		}
		ticketsCum += t.tickets
		revenueCum += t.revenue
		spendCum += spendByDay[day]

		var sell float64
		if e.Capacity > 0 {
			sell = float64(ticketsCum) / float64(e.Capacity) * 100
		}
		out = append(out, models.DailySnapshot{
			EventID:           e.ID,
			SnapshotDate:      day,
			DaysBeforeEvent:   models.DaysBetweenDates(day, eventDay),
			TicketsCumulative: ticketsCum,
			RevenueCumulative: revenueCum,
			TicketsThatDay:    t.tickets,
			RevenueThatDay:    t.revenue,
			OrdersThatDay:     t.orders,
			SellThroughPct:    sell,
			AdSpendCumulative: spendCum,
		})
	}
	return out
}
