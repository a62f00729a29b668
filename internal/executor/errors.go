package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ConnectionError reports a failure to reach or keep the database
// connection. Safe to retry.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Retryable marks this error class as safe to retry. The engine itself
// never retries; callers decide.
func (e *ConnectionError) Retryable() bool { return true }

// ConstraintViolationError reports a mutation rejected by a database
// integrity constraint.
type ConstraintViolationError struct {
	Code       string
	Constraint string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("constraint %q violated (sqlstate %s)", e.Constraint, e.Code)
	}
	return fmt.Sprintf("constraint violated (sqlstate %s)", e.Code)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// TimeoutError reports an operation canceled by its deadline. The statement
// is canceled server-side by the driver and the connection released.
type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out", e.Operation)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NotFoundError reports a non-nullable single-result query that matched no
// row.
type NotFoundError struct {
	Operation string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("operation %q found no matching row", e.Operation)
}

// UnexpectedRowShapeError reports result rows that do not match the compiled
// shape, which means the database schema has drifted from the artifact.
type UnexpectedRowShapeError struct {
	Operation string
	Detail    string
}

func (e *UnexpectedRowShapeError) Error() string {
	return fmt.Sprintf("operation %q returned unexpected row shape: %s", e.Operation, e.Detail)
}

// Classify maps a driver error to the engine taxonomy.
func Classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TimeoutError{Operation: operation, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "23") {
			return &ConstraintViolationError{Code: pgErr.Code, Constraint: pgErr.ConstraintName, Err: err}
		}
		// Class 08 is connection exception.
		if strings.HasPrefix(pgErr.Code, "08") {
			return &ConnectionError{Err: err}
		}
		// Query canceled server-side, usually via statement_timeout.
		if pgErr.Code == "57014" {
			return &TimeoutError{Operation: operation, Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return &ConnectionError{Err: err}
	}
	return err
}
