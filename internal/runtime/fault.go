package runtime

import (
	"errors"

	"viewql/internal/executor"
	"viewql/internal/planner"
)

// Fault classifies an execution error for callers deciding how to respond.
type Fault int

const (
	// FaultServer covers internal failures the caller cannot fix.
	FaultServer Fault = iota
	// FaultClient covers malformed or unauthorized requests.
	FaultClient
	// FaultRetryable covers transient failures safe to retry.
	FaultRetryable
)

// FaultOf maps an error from Execute onto its fault class.
func FaultOf(err error) Fault {
	var (
		unknownOp  *planner.UnknownOperationError
		missingArg *planner.MissingArgumentError
		badArg     *planner.ArgumentTypeError
		unknownArg *planner.UnknownArgumentError
		badCursor  *planner.InvalidCursorError
		denied     *planner.AccessDeniedError
		notFound   *executor.NotFoundError
		constraint *executor.ConstraintViolationError
		connection *executor.ConnectionError
		timeout    *executor.TimeoutError
	)
	switch {
	case errors.As(err, &unknownOp),
		errors.As(err, &missingArg),
		errors.As(err, &badArg),
		errors.As(err, &unknownArg),
		errors.As(err, &badCursor),
		errors.As(err, &denied),
		errors.As(err, &notFound),
		errors.As(err, &constraint):
		return FaultClient
	case errors.As(err, &connection),
		errors.As(err, &timeout):
		return FaultRetryable
	default:
		return FaultServer
	}
}
