package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PoolStats is the connection pool as reported on /health
type PoolStats struct {
	MaxOpenConns  int           `json:"max_open_connections"`
	OpenConns     int           `json:"open_connections"`
	InUse         int           `json:"in_use"`
	Idle          int           `json:"idle"`
	WaitCount     int64         `json:"wait_count"`
	WaitDuration  time.Duration `json:"wait_duration"`
	MaxIdleClosed int64         `json:"max_idle_closed"`
}

type Health struct {
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Pool      PoolStats     `json:"pool"`
	CheckedAt time.Time     `json:"checked_at"`
}

func poolStats(s sql.DBStats) PoolStats {
	return PoolStats{
		MaxOpenConns:  s.MaxOpenConnections,
		OpenConns:     s.OpenConnections,
		InUse:         s.InUse,
		Idle:          s.Idle,
		WaitCount:     s.WaitCount,
		WaitDuration:  s.WaitDuration,
		MaxIdleClosed: s.MaxIdleClosed,
	}
}

// Health pings the database with a short deadline
func (db *DB) Health(ctx context.Context) Health {
	start := time.Now()
	h := Health{CheckedAt: start.UTC(), Pool: poolStats(db.Stats())}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := db.PingContext(pingCtx)
	h.Latency = time.Since(start)
	if err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		slog.Error("Database health check failed", "error", err)
		return h
	}
	h.Status = "healthy"
	return h
}

// slowWait is the average connection wait above which a rebuild pass is
// considered starved
const slowWait = 50 * time.Millisecond

// RebuildPressure logs and returns the pool hints for a rebuild pass that
// ran with the given number of workers.
func (db *DB) RebuildPressure(workers int) []string {
	hints := pressureHints(db.Stats(), workers)
	for _, h := range hints {
		slog.Warn("Rebuild pool pressure", "hint", h, "workers", workers)
	}
	return hints
}

func pressureHints(s sql.DBStats, workers int) []string {
	var hints []string
	if s.MaxOpenConnections > 0 && workers > s.MaxOpenConnections {
		hints = append(hints, fmt.Sprintf(
			"ENGINE_WORKERS=%d exceeds DB_MAX_OPEN_CONNS=%d; workers queue for connections",
			workers, s.MaxOpenConnections))
	}
	if s.MaxOpenConnections > 0 && s.InUse*10 >= s.MaxOpenConnections*9 {
		hints = append(hints, fmt.Sprintf("%d of %d connections still in use after the pass",
			s.InUse, s.MaxOpenConnections))
	}
	if s.WaitCount > 0 {
		if avg := s.WaitDuration / time.Duration(s.WaitCount); avg > slowWait {
			hints = append(hints, fmt.Sprintf("%d connection waits averaging %s; raise DB_MAX_OPEN_CONNS or lower ENGINE_WORKERS",
				s.WaitCount, avg.Round(time.Millisecond)))
		}
	}
	if idle := int64(max(s.MaxOpenConnections, 1)) * 20; s.MaxIdleClosed > idle {
		hints = append(hints, fmt.Sprintf("%d idle connections closed; raise DB_MAX_IDLE_CONNS", s.MaxIdleClosed))
	}
	return hints
}

const (
	maxAttempts  = 3
	retryBackoff = 100 * time.Millisecond
)

// QueryWithRetry runs a read query, retrying dropped connections
func (db *DB) QueryWithRetry(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := retry(ctx, func() error {
		var err error
		rows, err = db.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

// ExecWithRetry runs a single-statement write. Concurrent rebuild workers
// upsert into the same tables, so lock conflicts are retried as well.
func (db *DB) ExecWithRetry(ctx context.Context, query string, args ...interface{}) error {
	return retry(ctx, func() error {
		_, err := db.ExecContext(ctx, query, args...)
		return err
	})
}

// WithTxRetry is WithTx, rerun from the start when the transaction loses a
// lock conflict or its connection.
func (db *DB) WithTxRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry(ctx, func() error { return db.WithTx(ctx, fn) })
}

func retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		slog.Warn("Database operation failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxAttempts, err)
}

// lock conflicts between rebuild writers and server-side connection loss
var retryableCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableCodes[pqErr.Code] || pqErr.Code.Class() == "08"
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
