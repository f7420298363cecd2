package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"pacer/internal/database"
	"pacer/internal/models"
)

type CustomerRepository struct {
	db *database.DB
}

func NewCustomerRepository(db *database.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `email, total_orders, total_tickets, total_spent, total_events,
		first_order_date, last_order_date, days_since_last, tenure_days,
		avg_order_value, avg_tickets_per_order, avg_days_between_orders,
		favorite_event_type, favorite_city, event_types, cities,
		avg_days_before_event, timing_segment, rfm_r, rfm_f, rfm_m, rfm_segment,
		ltv_score, ltv_projected, events_attended, updated_at`

func (r *CustomerRepository) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	eventTypes, err := jsonb(c.EventTypes)
	if err != nil {
		return err
	}
	cities, err := jsonb(c.Cities)
	if err != nil {
		return err
	}
	attended, err := jsonb(c.EventsAttended)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (email) DO UPDATE
		SET total_orders = EXCLUDED.total_orders, total_tickets = EXCLUDED.total_tickets,
		    total_spent = EXCLUDED.total_spent, total_events = EXCLUDED.total_events,
		    first_order_date = EXCLUDED.first_order_date, last_order_date = EXCLUDED.last_order_date,
		    days_since_last = EXCLUDED.days_since_last, tenure_days = EXCLUDED.tenure_days,
		    avg_order_value = EXCLUDED.avg_order_value, avg_tickets_per_order = EXCLUDED.avg_tickets_per_order,
		    avg_days_between_orders = EXCLUDED.avg_days_between_orders,
		    favorite_event_type = EXCLUDED.favorite_event_type, favorite_city = EXCLUDED.favorite_city,
		    event_types = EXCLUDED.event_types, cities = EXCLUDED.cities,
		    avg_days_before_event = EXCLUDED.avg_days_before_event, timing_segment = EXCLUDED.timing_segment,
		    rfm_r = EXCLUDED.rfm_r, rfm_f = EXCLUDED.rfm_f, rfm_m = EXCLUDED.rfm_m,
		    rfm_segment = EXCLUDED.rfm_segment, ltv_score = EXCLUDED.ltv_score,
		    ltv_projected = EXCLUDED.ltv_projected, events_attended = EXCLUDED.events_attended,
		    updated_at = EXCLUDED.updated_at`

	err = r.db.ExecWithRetry(ctx, query,
		c.Email, c.TotalOrders, c.TotalTickets, c.TotalSpent, c.TotalEventsAttended,
		c.FirstOrderDate, c.LastOrderDate, c.DaysSinceLastOrder, c.TenureDays,
		c.AvgOrderValue, c.AvgTicketsPerOrder, c.AvgDaysBetweenOrders,
		c.FavoriteEventType, c.FavoriteCity, eventTypes, cities,
		c.AvgDaysBeforeEvent, c.TimingSegment, c.RFMRecency, c.RFMFrequency, c.RFMMonetary, c.RFMSegment,
		c.LTVScore, c.LTVProjected, attended, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

func (r *CustomerRepository) GetCustomer(ctx context.Context, email string) (*models.Customer, error) {
	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = $1`, models.NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetCustomers returns the stored profiles among emails; unknown emails are skipped
func (r *CustomerRepository) GetCustomers(ctx context.Context, emails []string) ([]models.Customer, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	keys := make([]string, len(emails))
	for i, e := range emails {
		keys[i] = models.NormalizeEmail(e)
	}
	return r.listCustomers(ctx, `SELECT `+customerColumns+` FROM customers WHERE email = ANY($1)`, pq.Array(keys))
}

// highValueWhere builds the filter shared by the list and count queries
func highValueWhere(f models.CustomerFilter) (string, []interface{}) {
	where := " WHERE ltv_score >= $1"
	args := []interface{}{f.MinLTV}
	if f.EventType != "" {
		args = append(args, f.EventType)
		where += fmt.Sprintf(" AND event_types ? $%d", len(args))
	}
	if f.City != "" {
		args = append(args, f.City)
		where += fmt.Sprintf(" AND cities ? $%d", len(args))
	}
	if f.FavoriteCity != "" {
		args = append(args, f.FavoriteCity)
		where += fmt.Sprintf(" AND favorite_city = $%d", len(args))
	}
	return where, args
}

func (r *CustomerRepository) ListHighValueCustomers(ctx context.Context, f models.CustomerFilter) ([]models.Customer, error) {
	where, args := highValueWhere(f)
	query := `SELECT ` + customerColumns + ` FROM customers` + where + ` ORDER BY ltv_score DESC, email ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.listCustomers(ctx, query, args...)
}

func (r *CustomerRepository) CountHighValueCustomers(ctx context.Context, f models.CustomerFilter) (int, error) {
	where, args := highValueWhere(f)
	query := `SELECT COUNT(*) FROM customers` + where
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query = fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT 1 FROM customers%s LIMIT $%d) t`, where, len(args))
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count high-value customers: %w", err)
	}
	return n, nil
}

func (r *CustomerRepository) ListAtRiskCustomers(ctx context.Context, minOrders, minDaysInactive int) ([]models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers
		WHERE total_orders >= $1 AND days_since_last >= $2
		ORDER BY total_spent DESC, email ASC`
	return r.listCustomers(ctx, query, minOrders, minDaysInactive)
}

func (r *CustomerRepository) CountAtRiskCustomers(ctx context.Context, minOrders, minDaysInactive int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM customers WHERE total_orders >= $1 AND days_since_last >= $2`,
		minOrders, minDaysInactive).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count at-risk customers: %w", err)
	}
	return n, nil
}

func (r *CustomerRepository) SegmentCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rfm_segment, COUNT(*)
		FROM customers
		WHERE rfm_segment <> ''
		GROUP BY rfm_segment`)
	if err != nil {
		return nil, fmt.Errorf("failed to count segments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var segment string
		var n int
		if err := rows.Scan(&segment, &n); err != nil {
			return nil, fmt.Errorf("failed to scan segment count: %w", err)
		}
		counts[segment] = n
	}
	return counts, rows.Err()
}

func (r *CustomerRepository) listCustomers(ctx context.Context, query string, args ...interface{}) ([]models.Customer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var out []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	var c models.Customer
	var eventTypes, cities, attended []byte
	var first, last sql.NullTime
	err := row.Scan(
		&c.Email, &c.TotalOrders, &c.TotalTickets, &c.TotalSpent, &c.TotalEventsAttended,
		&first, &last, &c.DaysSinceLastOrder, &c.TenureDays,
		&c.AvgOrderValue, &c.AvgTicketsPerOrder, &c.AvgDaysBetweenOrders,
		&c.FavoriteEventType, &c.FavoriteCity, &eventTypes, &cities,
		&c.AvgDaysBeforeEvent, &c.TimingSegment, &c.RFMRecency, &c.RFMFrequency, &c.RFMMonetary, &c.RFMSegment,
		&c.LTVScore, &c.LTVProjected, &attended, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if first.Valid {
		c.FirstOrderDate = first.Time.UTC()
	}
	if last.Valid {
		c.LastOrderDate = last.Time.UTC()
	}
	if err := scanJSONB(eventTypes, &c.EventTypes); err != nil {
		return nil, err
	}
	if err := scanJSONB(cities, &c.Cities); err != nil {
		return nil, err
	}
	if err := scanJSONB(attended, &c.EventsAttended); err != nil {
		return nil, err
	}
	return &c, nil
}
