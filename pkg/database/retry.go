package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"time"
)

// RetryConfig bounds how long a caller waits on a flaky store.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Retryable reports whether the error looks like a transient store failure
// rather than a caller mistake. Validation and constraint errors are never
// retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// WithRetry runs fn, retrying transient failures with a fixed delay up to the
// configured attempt count. The last error is returned once attempts exhaust
// or the context is cancelled.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
