package compiler

import (
	"fmt"
	"strings"

	"viewql/internal/schema"
)

// PreconditionError is returned when Compile is handed a schema that fails
// validation. Compilation never proceeds past an invalid model.
type PreconditionError struct {
	Issues []schema.ValidationError
}

func (e *PreconditionError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Error()
	}
	return fmt.Sprintf("schema failed validation: %s", strings.Join(msgs, "; "))
}

// UnboundArgumentError reports a declared argument that binds to no field of
// the operation's return type and is not a recognized auto parameter.
type UnboundArgumentError struct {
	Operation string
	Argument  string
}

func (e *UnboundArgumentError) Error() string {
	return fmt.Sprintf("%s: argument %q does not bind to any field", e.Operation, e.Argument)
}

// AmbiguousBindingError reports an argument whose name matches more than one
// field of the return type.
type AmbiguousBindingError struct {
	Operation string
	Argument  string
	Fields    []string
}

func (e *AmbiguousBindingError) Error() string {
	return fmt.Sprintf("%s: argument %q matches multiple fields: %s",
		e.Operation, e.Argument, strings.Join(e.Fields, ", "))
}

// UnknownOperatorError reports an argument requesting a comparison operator
// the compiler does not understand.
type UnknownOperatorError struct {
	Operation string
	Argument  string
	Op        string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("%s: argument %q uses unknown operator %q", e.Operation, e.Argument, e.Op)
}

// UnknownAggregationFunctionError reports an aggregate query selecting an
// aggregation function the compiler does not emit.
type UnknownAggregationFunctionError struct {
	Operation string
	Function  string
}

func (e *UnknownAggregationFunctionError) Error() string {
	return fmt.Sprintf("%s: unknown aggregation function %q", e.Operation, e.Function)
}

// DuplicateOperationError reports two operations of different kinds sharing
// one name. Operation names are a single flat namespace at runtime.
type DuplicateOperationError struct {
	Name string
}

func (e *DuplicateOperationError) Error() string {
	return fmt.Sprintf("operation name %q is declared more than once", e.Name)
}
