package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(nil))
	assert.True(t, retryable(errors.New("dial tcp 127.0.0.1:5432: connection refused")))
	assert.True(t, retryable(fmt.Errorf("failed to save curve: %w", driver.ErrBadConn)))
	assert.True(t, retryable(errors.New("read tcp: i/o timeout")))

	assert.True(t, retryable(fmt.Errorf("failed to upsert customer: %w", &pq.Error{Code: "40P01"})))
	assert.True(t, retryable(&pq.Error{Code: "40001"}))
	assert.True(t, retryable(&pq.Error{Code: "08006"}))
	assert.False(t, retryable(&pq.Error{Code: "23505"}))
	assert.False(t, retryable(errors.New(`pq: relation "events" does not exist`)))
	assert.False(t, retryable(context.Canceled))
}

func TestRetry_StopsOnSuccessOrPermanentError(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retry(ctx, func() error {
		calls++
		if calls < 2 {
			return &pq.Error{Code: "40P01"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retry(ctx, func() error {
		calls++
		return &pq.Error{Code: "23505"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = retry(ctx, func() error {
		calls++
		return driver.ErrBadConn
	})
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Equal(t, maxAttempts, calls)
}

func TestRetry_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, func() error { return driver.ErrBadConn })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPressureHints(t *testing.T) {
	assert.Empty(t, pressureHints(sql.DBStats{MaxOpenConnections: 50, InUse: 2}, 8))
	// unlimited pool never starves workers
	assert.Empty(t, pressureHints(sql.DBStats{}, 64))

	hints := pressureHints(sql.DBStats{MaxOpenConnections: 4, InUse: 4}, 8)
	require.Len(t, hints, 2)
	assert.Contains(t, hints[0], "ENGINE_WORKERS=8 exceeds DB_MAX_OPEN_CONNS=4")
	assert.Contains(t, hints[1], "4 of 4 connections")

	hints = pressureHints(sql.DBStats{MaxOpenConnections: 50, WaitCount: 10, WaitDuration: 2 * time.Second}, 8)
	require.Len(t, hints, 1)
	assert.Contains(t, hints[0], "averaging 200ms")

	hints = pressureHints(sql.DBStats{MaxOpenConnections: 10, MaxIdleClosed: 500}, 4)
	require.Len(t, hints, 1)
	assert.Contains(t, hints[0], "DB_MAX_IDLE_CONNS")
}
