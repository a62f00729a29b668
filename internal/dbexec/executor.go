// Package dbexec provides the database execution abstraction the engine
// runs compiled statements through. Wrapping *sql.DB behind a small
// interface keeps the executor testable and leaves room for pooled or
// instrumented variants.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows abstracts sql.Rows so wrapped cleanup behavior can be swapped in.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// StandardExecutor executes statements directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor over a database handle.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

func (e *StandardExecutor) PingContext(ctx context.Context) error {
	if e.db == nil {
		return sql.ErrConnDone
	}
	return e.db.PingContext(ctx)
}
