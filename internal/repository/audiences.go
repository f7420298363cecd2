package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"pacer/internal/database"
	"pacer/internal/models"
)

// AudienceRepository answers the buyer-set queries behind event targeting
type AudienceRepository struct {
	db *database.DB
}

func NewAudienceRepository(db *database.DB) *AudienceRepository {
	return &AudienceRepository{db: db}
}

const eventBuyersQuery = `
	SELECT DISTINCT lower(email)
	FROM orders
	WHERE event_id = ANY($1) AND email <> ''
	ORDER BY 1`

const seriesAttendanceQuery = `
	SELECT lower(email), COUNT(DISTINCT event_id), COALESCE(SUM(gross_amount), 0), MAX(order_timestamp)
	FROM orders
	WHERE event_id = ANY($1) AND email <> ''
	GROUP BY lower(email)
	ORDER BY 3 DESC, 1 ASC`

const otherTypeBuyersQuery = `
	SELECT lower(o.email), array_agg(DISTINCT e.event_type ORDER BY e.event_type)
	FROM orders o
	JOIN events e ON e.event_id = o.event_id
	WHERE e.city = $1 AND e.event_type <> $2 AND e.event_type <> '' AND o.email <> ''
	GROUP BY lower(o.email)
	ORDER BY 1`

func (r *AudienceRepository) EventBuyers(ctx context.Context, eventIDs []string) ([]string, error) {
	rows, err := r.db.QueryWithRetry(ctx, eventBuyersQuery, pq.Array(eventIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list event buyers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan buyer: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (r *AudienceRepository) SeriesAttendance(ctx context.Context, eventIDs []string) ([]models.Attendance, error) {
	rows, err := r.db.QueryWithRetry(ctx, seriesAttendanceQuery, pq.Array(eventIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load series attendance: %w", err)
	}
	defer rows.Close()

	var out []models.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttendance(row rowScanner) (models.Attendance, error) {
	var a models.Attendance
	if err := row.Scan(&a.Email, &a.Editions, &a.Spent, &a.LastPurchase); err != nil {
		return a, err
	}
	a.LastPurchase = a.LastPurchase.UTC()
	return a, nil
}

func (r *AudienceRepository) OtherTypeBuyers(ctx context.Context, city, eventType string) ([]models.TypeAttendance, error) {
	rows, err := r.db.QueryWithRetry(ctx, otherTypeBuyersQuery, city, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to list cross-sell buyers: %w", err)
	}
	defer rows.Close()

	var out []models.TypeAttendance
	for rows.Next() {
		var ta models.TypeAttendance
		if err := rows.Scan(&ta.Email, pq.Array(&ta.Types)); err != nil {
			return nil, fmt.Errorf("failed to scan cross-sell buyer: %w", err)
		}
		out = append(out, ta)
	}
	return out, rows.Err()
}
