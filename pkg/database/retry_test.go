package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{Attempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("ping: %w", driver.ErrBadConn)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnTerminalError(t *testing.T) {
	terminal := fmt.Errorf("syntax error")
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{Attempts: 5, Delay: time.Millisecond}, func() error {
		calls++
		return terminal
	})

	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestWithRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{Attempts: 2, Delay: time.Millisecond}, func() error {
		calls++
		return fmt.Errorf("ping: %w", driver.ErrBadConn)
	})

	require.ErrorIs(t, err, driver.ErrBadConn)
	assert.Equal(t, 2, calls)
}

func TestRetryableClassifiesErrors(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("exec: %w", driver.ErrBadConn)))
	assert.False(t, Retryable(fmt.Errorf("constraint violation")))
	assert.False(t, Retryable(nil))
}
