package repository

import (
	"context"
	"database/sql"
	"fmt"

	"pacer/internal/database"
	"pacer/internal/models"
)

type OrderRepository struct {
	db *database.DB
}

func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) UpsertOrder(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (event_id, order_id, email, order_timestamp, ticket_count,
		                    gross_amount, ticket_type, promo_code, days_before_event)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id, order_id) DO UPDATE
		SET email = EXCLUDED.email, order_timestamp = EXCLUDED.order_timestamp,
		    ticket_count = EXCLUDED.ticket_count, gross_amount = EXCLUDED.gross_amount,
		    ticket_type = EXCLUDED.ticket_type, promo_code = EXCLUDED.promo_code,
		    days_before_event = EXCLUDED.days_before_event`

	_, err := r.db.ExecContext(ctx, query,
		o.EventID, o.ID, o.Email, o.Timestamp, o.TicketCount, o.GrossAmount,
		nullString(o.TicketType), nullString(o.PromoCode), o.DaysBeforeEvent)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s/%s: %w", o.EventID, o.ID, err)
	}
	return nil
}

func (r *OrderRepository) ListOrdersForEvent(ctx context.Context, eventID string) ([]models.Order, error) {
	query := `
		SELECT order_id, event_id, email, order_timestamp, ticket_count, gross_amount,
		       ticket_type, promo_code, days_before_event
		FROM orders
		WHERE event_id = $1
		ORDER BY order_timestamp ASC, order_id ASC`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for %s: %w", eventID, err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ListCustomerOrders returns every order joined with its event, newest first
func (r *OrderRepository) ListCustomerOrders(ctx context.Context) ([]models.CustomerOrder, error) {
	query := `
		SELECT o.order_id, o.event_id, o.email, o.order_timestamp, o.ticket_count, o.gross_amount,
		       o.ticket_type, o.promo_code, o.days_before_event,
		       COALESCE(e.name, ''), COALESCE(e.event_type, ''), COALESCE(e.city, ''), e.event_date
		FROM orders o
		LEFT JOIN events e ON e.event_id = o.event_id
		ORDER BY o.order_timestamp DESC, o.order_id ASC`

	rows, err := r.db.QueryWithRetry(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer orders: %w", err)
	}
	defer rows.Close()

	var out []models.CustomerOrder
	for rows.Next() {
		var co models.CustomerOrder
		var ticketType, promo sql.NullString
		var eventDate sql.NullTime
		err := rows.Scan(
			&co.ID, &co.EventID, &co.Email, &co.Timestamp, &co.TicketCount, &co.GrossAmount,
			&ticketType, &promo, &co.DaysBeforeEvent,
			&co.EventName, &co.EventType, &co.City, &eventDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer order: %w", err)
		}
		co.TicketType = stringPtr(ticketType)
		co.PromoCode = stringPtr(promo)
		co.Timestamp = co.Timestamp.UTC()
		if eventDate.Valid {
			co.EventDate = eventDate.Time.UTC()
		}
		out = append(out, co)
	}
	return out, rows.Err()
}

// EventTotals returns the tickets sold and gross revenue of an event
func (r *OrderRepository) EventTotals(ctx context.Context, eventID string) (int, float64, error) {
	query := `
		SELECT COALESCE(SUM(ticket_count), 0), COALESCE(SUM(gross_amount), 0)
		FROM orders
		WHERE event_id = $1`

	var tickets int
	var revenue float64
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&tickets, &revenue); err != nil {
		return 0, 0, fmt.Errorf("failed to sum orders for %s: %w", eventID, err)
	}
	return tickets, revenue, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var ticketType, promo sql.NullString
	err := row.Scan(&o.ID, &o.EventID, &o.Email, &o.Timestamp, &o.TicketCount, &o.GrossAmount,
		&ticketType, &promo, &o.DaysBeforeEvent)
	if err != nil {
		return nil, err
	}
	o.TicketType = stringPtr(ticketType)
	o.PromoCode = stringPtr(promo)
	o.Timestamp = o.Timestamp.UTC()
	return &o, nil
}
