package repository

import (
	"context"
	"fmt"

	"pacer/internal/database"
	"pacer/internal/models"
)

type AdSpendRepository struct {
	db *database.DB
}

func NewAdSpendRepository(db *database.DB) *AdSpendRepository {
	return &AdSpendRepository{db: db}
}

func (r *AdSpendRepository) UpsertAdSpend(ctx context.Context, a *models.AdSpend) error {
	query := `
		INSERT INTO ad_spend (event_id, campaign_id, campaign_name, spend_date, spend, impressions, clicks)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, campaign_id, spend_date) DO UPDATE
		SET campaign_name = EXCLUDED.campaign_name, spend = EXCLUDED.spend,
		    impressions = EXCLUDED.impressions, clicks = EXCLUDED.clicks`

	_, err := r.db.ExecContext(ctx, query,
		a.EventID, a.CampaignID, a.CampaignName, models.DateOf(a.SpendDate),
		a.Spend, a.Impressions, a.Clicks)
	if err != nil {
		return fmt.Errorf("failed to upsert ad spend for %s: %w", a.EventID, err)
	}
	return nil
}

func (r *AdSpendRepository) ListAdSpend(ctx context.Context, eventID string) ([]models.AdSpend, error) {
	query := `
		SELECT event_id, campaign_id, campaign_name, spend_date, spend, impressions, clicks
		FROM ad_spend
		WHERE event_id = $1
		ORDER BY spend_date ASC, campaign_id ASC`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ad spend for %s: %w", eventID, err)
	}
	defer rows.Close()

	var out []models.AdSpend
	for rows.Next() {
		var a models.AdSpend
		if err := rows.Scan(&a.EventID, &a.CampaignID, &a.CampaignName, &a.SpendDate,
			&a.Spend, &a.Impressions, &a.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan ad spend: %w", err)
		}
		a.SpendDate = models.DateOf(a.SpendDate)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AdSpendRepository) EventSpend(ctx context.Context, eventID string) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(spend), 0) FROM ad_spend WHERE event_id = $1`, eventID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ad spend for %s: %w", eventID, err)
	}
	return total, nil
}
