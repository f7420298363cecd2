package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pacer/internal/database"
	"pacer/internal/models"
)

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `event_id, name, event_type, city, event_date, capacity, status, platform`

func (r *EventRepository) UpsertEvent(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO UPDATE
		SET name = EXCLUDED.name, event_type = EXCLUDED.event_type, city = EXCLUDED.city,
		    event_date = EXCLUDED.event_date, capacity = EXCLUDED.capacity,
		    status = EXCLUDED.status, platform = EXCLUDED.platform, updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Name, e.Category, e.City, e.Date, e.Capacity, string(e.Status), e.Platform)
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", e.ID, err)
	}
	return nil
}

func (r *EventRepository) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_id = $1`

	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return e, nil
}

func (r *EventRepository) ListEvents(ctx context.Context, f models.EventFilter) ([]models.Event, error) {
	var conds []string
	var args []interface{}
	argIndex := 1

	if f.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(f.Status))
		argIndex++
	}
	if !f.From.IsZero() {
		conds = append(conds, fmt.Sprintf("event_date >= $%d", argIndex))
		args = append(args, f.From)
		argIndex++
	}
	if !f.Before.IsZero() {
		conds = append(conds, fmt.Sprintf("event_date < $%d", argIndex))
		args = append(args, f.Before)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY event_date ASC, event_id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var status string
	if err := row.Scan(&e.ID, &e.Name, &e.Category, &e.City, &e.Date, &e.Capacity, &status, &e.Platform); err != nil {
		return nil, err
	}
	e.Status = models.EventStatus(status)
	e.Date = e.Date.UTC()
	return &e, nil
}
