package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// DB wraps the sqlx pool so single-statement reads and writes retry
// transient connection failures before the error surfaces to a request.
// Transactions are left alone: a statement inside a broken transaction
// cannot be replayed safely.
type DB struct {
	*sqlx.DB
	retry RetryConfig
}

// Wrap attaches the retry policy to an open connection pool.
func Wrap(db *sqlx.DB, cfg RetryConfig) *DB {
	return &DB{DB: db, retry: cfg}
}

// GetContext retries transient failures per the wrapped policy.
func (d *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return WithRetry(ctx, d.retry, func() error {
		return d.DB.GetContext(ctx, dest, query, args...)
	})
}

// SelectContext retries transient failures per the wrapped policy.
func (d *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return WithRetry(ctx, d.retry, func() error {
		return d.DB.SelectContext(ctx, dest, query, args...)
	})
}

// ExecContext retries transient failures per the wrapped policy.
func (d *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := WithRetry(ctx, d.retry, func() error {
		var execErr error
		res, execErr = d.DB.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}
