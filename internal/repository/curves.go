package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"pacer/internal/database"
	"pacer/internal/models"
)

type CurveRepository struct {
	db *database.DB
}

func NewCurveRepository(db *database.DB) *CurveRepository {
	return &CurveRepository{db: db}
}

func (r *CurveRepository) SaveCurve(ctx context.Context, c *models.PacingCurve) error {
	sources, err := jsonb(c.SourceEvents)
	if err != nil {
		return err
	}
	points, err := jsonb(c.Points)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pacing_curves (pattern, event_type, source_events, curve_data,
		                           avg_final_sell_through, sample_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pattern) DO UPDATE
		SET event_type = EXCLUDED.event_type, source_events = EXCLUDED.source_events,
		    curve_data = EXCLUDED.curve_data, avg_final_sell_through = EXCLUDED.avg_final_sell_through,
		    sample_count = EXCLUDED.sample_count, updated_at = EXCLUDED.updated_at`

	err = r.db.ExecWithRetry(ctx, query,
		c.Pattern, c.EventType, sources, points, c.AvgFinalSellThrough, c.SampleCount, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save curve %q: %w", c.Pattern, err)
	}
	return nil
}

const curveColumns = `pattern, event_type, source_events, curve_data, avg_final_sell_through, sample_count, updated_at`

func (r *CurveRepository) GetCurve(ctx context.Context, pattern string) (*models.PacingCurve, error) {
	c, err := scanCurve(r.db.QueryRowContext(ctx,
		`SELECT `+curveColumns+` FROM pacing_curves WHERE pattern = $1`, pattern))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get curve %q: %w", pattern, err)
	}
	return c, nil
}

func (r *CurveRepository) ListCurves(ctx context.Context) ([]models.PacingCurve, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+curveColumns+` FROM pacing_curves ORDER BY pattern ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list curves: %w", err)
	}
	defer rows.Close()

	var out []models.PacingCurve
	for rows.Next() {
		c, err := scanCurve(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan curve: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCurve(row rowScanner) (*models.PacingCurve, error) {
	var c models.PacingCurve
	var sources, points []byte
	err := row.Scan(&c.Pattern, &c.EventType, &sources, &points,
		&c.AvgFinalSellThrough, &c.SampleCount, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := scanJSONB(sources, &c.SourceEvents); err != nil {
		return nil, err
	}
	// JSON object keys are strings; days-before-event buckets are ints
	var raw map[string]models.CurvePoint
	if err := scanJSONB(points, &raw); err != nil {
		return nil, err
	}
	c.Points = make(map[int]models.CurvePoint, len(raw))
	for k, p := range raw {
		days, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid curve bucket %q: %w", k, err)
		}
		c.Points[days] = p
	}
	return &c, nil
}
