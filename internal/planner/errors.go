package planner

import "fmt"

// UnknownOperationError reports a request naming an operation the artifact
// does not contain.
type UnknownOperationError struct {
	Name string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Name)
}

// MissingArgumentError reports an omitted required argument with no default.
type MissingArgumentError struct {
	Operation string
	Argument  string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s: missing required argument %q", e.Operation, e.Argument)
}

// ArgumentTypeError reports an argument value that cannot be coerced to its
// declared type.
type ArgumentTypeError struct {
	Operation string
	Argument  string
	Expected  string
	Value     any
}

func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("%s: argument %q expects %s, got %T", e.Operation, e.Argument, e.Expected, e.Value)
}

// UnknownArgumentError reports an argument the operation does not declare.
// Unknown arguments are never silently dropped.
type UnknownArgumentError struct {
	Operation string
	Argument  string
}

func (e *UnknownArgumentError) Error() string {
	return fmt.Sprintf("%s: unknown argument %q", e.Operation, e.Argument)
}

// InvalidCursorError reports a page cursor that cannot resume this
// operation: malformed, issued for a different operation, or combined with
// an explicit offset.
type InvalidCursorError struct {
	Operation string
	Err       error
}

func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("%s: invalid cursor: %v", e.Operation, e.Err)
}

func (e *InvalidCursorError) Unwrap() error { return e.Err }

// AccessDeniedError reports a caller whose capabilities do not admit the
// operation at all.
type AccessDeniedError struct {
	Operation string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access to operation %q denied", e.Operation)
}
