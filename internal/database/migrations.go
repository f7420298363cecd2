package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createEventsTable,
		createOrdersTable,
		createAdSpendTable,
		createDailySnapshotsTable,
		createPacingCurvesTable,
		createCustomersTable,
		createIndexes,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    event_id VARCHAR(100) PRIMARY KEY,
    name VARCHAR(500) NOT NULL,
    event_type VARCHAR(50) NOT NULL DEFAULT '',
    city VARCHAR(100) NOT NULL DEFAULT '',
    event_date TIMESTAMPTZ NOT NULL,
    capacity INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'upcoming',
    platform VARCHAR(50) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('upcoming', 'live', 'completed')),
    CHECK (capacity >= 0)
);`

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
    event_id VARCHAR(100) NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
    order_id VARCHAR(100) NOT NULL,
    email VARCHAR(255) NOT NULL DEFAULT '',
    order_timestamp TIMESTAMPTZ NOT NULL,
    ticket_count INTEGER NOT NULL DEFAULT 1,
    gross_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
    ticket_type VARCHAR(100),
    promo_code VARCHAR(100),
    days_before_event INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (event_id, order_id)
);`

const createAdSpendTable = `
CREATE TABLE IF NOT EXISTS ad_spend (
    event_id VARCHAR(100) NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
    campaign_id VARCHAR(100) NOT NULL,
    campaign_name VARCHAR(255) NOT NULL DEFAULT '',
    spend_date DATE NOT NULL,
    spend DECIMAL(12,2) NOT NULL DEFAULT 0,
    impressions INTEGER NOT NULL DEFAULT 0,
    clicks INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (event_id, campaign_id, spend_date)
);`

const createDailySnapshotsTable = `
CREATE TABLE IF NOT EXISTS daily_snapshots (
    event_id VARCHAR(100) NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
    snapshot_date DATE NOT NULL,
    days_before_event INTEGER NOT NULL,
    tickets_cumulative INTEGER NOT NULL DEFAULT 0,
    revenue_cumulative DECIMAL(12,2) NOT NULL DEFAULT 0,
    tickets_that_day INTEGER NOT NULL DEFAULT 0,
    revenue_that_day DECIMAL(12,2) NOT NULL DEFAULT 0,
    orders_that_day INTEGER NOT NULL DEFAULT 0,
    sell_through_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    ad_spend_cumulative DECIMAL(12,2) NOT NULL DEFAULT 0,

    PRIMARY KEY (event_id, snapshot_date)
);`

const createPacingCurvesTable = `
CREATE TABLE IF NOT EXISTS pacing_curves (
    pattern VARCHAR(500) PRIMARY KEY,
    event_type VARCHAR(50) NOT NULL DEFAULT '',
    source_events JSONB NOT NULL DEFAULT '[]',
    curve_data JSONB NOT NULL DEFAULT '{}',
    avg_final_sell_through DOUBLE PRECISION NOT NULL DEFAULT 0,
    sample_count INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createCustomersTable = `
CREATE TABLE IF NOT EXISTS customers (
    email VARCHAR(255) PRIMARY KEY,
    total_orders INTEGER NOT NULL DEFAULT 0,
    total_tickets INTEGER NOT NULL DEFAULT 0,
    total_spent DECIMAL(12,2) NOT NULL DEFAULT 0,
    total_events INTEGER NOT NULL DEFAULT 0,
    first_order_date TIMESTAMPTZ,
    last_order_date TIMESTAMPTZ,
    days_since_last INTEGER NOT NULL DEFAULT 0,
    tenure_days INTEGER NOT NULL DEFAULT 0,
    avg_order_value DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_tickets_per_order DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_days_between_orders DOUBLE PRECISION NOT NULL DEFAULT 0,
    favorite_event_type VARCHAR(50) NOT NULL DEFAULT '',
    favorite_city VARCHAR(100) NOT NULL DEFAULT '',
    event_types JSONB NOT NULL DEFAULT '{}',
    cities JSONB NOT NULL DEFAULT '{}',
    avg_days_before_event DOUBLE PRECISION NOT NULL DEFAULT 0,
    timing_segment VARCHAR(30) NOT NULL DEFAULT '',
    rfm_r SMALLINT NOT NULL DEFAULT 0,
    rfm_f SMALLINT NOT NULL DEFAULT 0,
    rfm_m SMALLINT NOT NULL DEFAULT 0,
    rfm_segment VARCHAR(30) NOT NULL DEFAULT '',
    ltv_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    ltv_projected DOUBLE PRECISION NOT NULL DEFAULT 0,
    events_attended JSONB NOT NULL DEFAULT '[]',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createIndexes = `
CREATE INDEX IF NOT EXISTS events_event_date_idx ON events (event_date);
CREATE INDEX IF NOT EXISTS events_status_idx ON events (status);
CREATE INDEX IF NOT EXISTS orders_email_idx ON orders (email);
CREATE INDEX IF NOT EXISTS orders_timestamp_idx ON orders (order_timestamp);
CREATE INDEX IF NOT EXISTS daily_snapshots_days_idx ON daily_snapshots (event_id, days_before_event);
CREATE INDEX IF NOT EXISTS customers_ltv_idx ON customers (ltv_score DESC);
CREATE INDEX IF NOT EXISTS customers_segment_idx ON customers (rfm_segment);
CREATE INDEX IF NOT EXISTS customers_event_types_idx ON customers USING GIN (event_types);
CREATE INDEX IF NOT EXISTS customers_cities_idx ON customers USING GIN (cities);`
