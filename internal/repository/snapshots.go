package repository

import (
	"context"
	"database/sql"
	"fmt"

	"pacer/internal/database"
	"pacer/internal/models"
)

type SnapshotRepository struct {
	db *database.DB
}

func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `event_id, snapshot_date, days_before_event, tickets_cumulative, revenue_cumulative,
		tickets_that_day, revenue_that_day, orders_that_day, sell_through_pct, ad_spend_cumulative`

// ReplaceSnapshots swaps the whole snapshot series of an event atomically
func (r *SnapshotRepository) ReplaceSnapshots(ctx context.Context, eventID string, snaps []models.DailySnapshot) error {
	return r.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM daily_snapshots WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("failed to clear snapshots for %s: %w", eventID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_snapshots (`+snapshotColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
		if err != nil {
			return fmt.Errorf("failed to prepare snapshot insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range snaps {
			_, err := stmt.ExecContext(ctx,
				eventID, models.DateOf(s.SnapshotDate), s.DaysBeforeEvent,
				s.TicketsCumulative, s.RevenueCumulative,
				s.TicketsThatDay, s.RevenueThatDay, s.OrdersThatDay,
				s.SellThroughPct, s.AdSpendCumulative)
			if err != nil {
				return fmt.Errorf("failed to insert snapshot %s/%d: %w", eventID, s.DaysBeforeEvent, err)
			}
		}
		return nil
	})
}

func (r *SnapshotRepository) ListSnapshots(ctx context.Context, eventID string) ([]models.DailySnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM daily_snapshots
		WHERE event_id = $1
		ORDER BY days_before_event DESC`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for %s: %w", eventID, err)
	}
	defer rows.Close()

	var out []models.DailySnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SnapshotNear returns the snapshot closest to days within tolerance, or nil
func (r *SnapshotRepository) SnapshotNear(ctx context.Context, eventID string, days, tolerance int) (*models.DailySnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM daily_snapshots
		WHERE event_id = $1 AND ABS(days_before_event - $2) <= $3
		ORDER BY ABS(days_before_event - $2) ASC, days_before_event DESC
		LIMIT 1`

	s, err := scanSnapshot(r.db.QueryRowContext(ctx, query, eventID, days, tolerance))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot near %d for %s: %w", days, eventID, err)
	}
	return s, nil
}

func scanSnapshot(row rowScanner) (*models.DailySnapshot, error) {
	var s models.DailySnapshot
	err := row.Scan(&s.EventID, &s.SnapshotDate, &s.DaysBeforeEvent,
		&s.TicketsCumulative, &s.RevenueCumulative,
		&s.TicketsThatDay, &s.RevenueThatDay, &s.OrdersThatDay,
		&s.SellThroughPct, &s.AdSpendCumulative)
	if err != nil {
		return nil, err
	}
	s.SnapshotDate = models.DateOf(s.SnapshotDate)
	return &s, nil
}
