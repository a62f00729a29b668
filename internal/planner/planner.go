// Package planner turns a compiled operation plus caller-supplied arguments
// into an ExecutionPlan: the final SQL text, placeholder values in order,
// the caller's field projection, and the shape the executor should expect.
// Planning is pure and deterministic; it touches neither the database nor
// the schema model.
package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"viewql/internal/compiler"
	"viewql/internal/cursor"
	"viewql/internal/rbac"
)

// ExecutionPlan is a fully resolved, single-use execution request.
type ExecutionPlan struct {
	Operation   string
	Kind        compiler.OpKind
	ReturnType  string
	ReturnsList bool
	Nullable    bool

	SQL  string
	Args []any

	// Limit is the page size the caller sees. The SQL limit placeholder is
	// bound to Limit+1 so the executor can detect a following page.
	Limit  int
	Offset int
	Paged  bool

	Topic      string
	JSONColumn string
	Projection rbac.Projection
	Subject    string

	Aggregate *compiler.AggregateShape

	// Filters holds resolved subscription filter values.
	Filters map[string]any
}

// Plan resolves an operation invocation against an artifact. Arguments are
// validated strictly: required ones must be present (or defaulted), unknown
// ones are rejected, and values are coerced to their declared types.
func Plan(art *compiler.Artifact, opName string, caller rbac.Caller, args map[string]any) (*ExecutionPlan, error) {
	op := art.Operation(opName)
	if op == nil {
		return nil, &UnknownOperationError{Name: opName}
	}
	if !rbac.Allowed(op.Guard, caller) {
		return nil, &AccessDeniedError{Operation: opName}
	}

	if err := checkUnknownArgs(op, args); err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{
		Operation:   op.Name,
		Kind:        op.Kind,
		ReturnType:  op.ReturnType,
		ReturnsList: op.ReturnsList,
		Nullable:    op.Nullable,
		SQL:         op.SQL,
		Topic:       op.Topic,
		Paged:       op.Paged,
		Aggregate:   op.Aggregate,
		Subject:     caller.Subject,
		Projection:  art.Visibility.Project(op.ReturnType, caller),
	}
	if shape, ok := art.Types[op.ReturnType]; ok {
		plan.JSONColumn = shape.JSONColumn
	}

	if op.Kind == compiler.OpSubscription {
		filters, err := resolveFilters(op, args)
		if err != nil {
			return nil, err
		}
		plan.Filters = filters
		return plan, nil
	}

	values := make([]any, 0, len(op.Bindings))
	for _, binding := range op.Bindings {
		switch binding.Kind {
		case compiler.BindLimit:
			limit, err := resolveLimit(op, args)
			if err != nil {
				return nil, err
			}
			plan.Limit = limit
			values = append(values, limit+1)
		case compiler.BindOffset:
			offset, err := resolveOffset(op, args)
			if err != nil {
				return nil, err
			}
			plan.Offset = offset
			values = append(values, offset)
		default:
			value, err := resolveValue(op, binding, args)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
	}
	plan.Args = values
	return plan, nil
}

func checkUnknownArgs(op *compiler.Operation, args map[string]any) error {
	declared := map[string]struct{}{}
	for _, b := range op.Bindings {
		if b.Argument != "" {
			declared[b.Argument] = struct{}{}
		}
	}
	if op.Paged {
		declared["limit"] = struct{}{}
		declared["offset"] = struct{}{}
		declared["cursor"] = struct{}{}
	}
	for name := range args {
		if _, ok := declared[name]; !ok {
			return &UnknownArgumentError{Operation: op.Name, Argument: name}
		}
	}
	return nil
}

func resolveValue(op *compiler.Operation, binding compiler.Binding, args map[string]any) (any, error) {
	value, provided := args[binding.Argument]
	if !provided || value == nil {
		if binding.Default != nil {
			value = binding.Default
		} else if binding.Required {
			return nil, &MissingArgumentError{Operation: op.Name, Argument: binding.Argument}
		} else {
			return nil, nil
		}
	}
	coerced, err := coerce(value, binding.Type)
	if err != nil {
		return nil, &ArgumentTypeError{Operation: op.Name, Argument: binding.Argument, Expected: binding.Type, Value: value}
	}
	return coerced, nil
}

func resolveLimit(op *compiler.Operation, args map[string]any) (int, error) {
	limit := op.DefaultLimit
	if raw, ok := args["limit"]; ok && raw != nil {
		n, err := toInt(raw)
		if err != nil || n < 1 {
			return 0, &ArgumentTypeError{Operation: op.Name, Argument: "limit", Expected: "Int", Value: raw}
		}
		limit = int(n)
	}
	if op.MaxLimit > 0 && limit > op.MaxLimit {
		limit = op.MaxLimit
	}
	return limit, nil
}

// resolveOffset resolves the page start from either an explicit offset or an
// opaque cursor issued by a previous page. Supplying both is rejected.
func resolveOffset(op *compiler.Operation, args map[string]any) (int, error) {
	rawCursor, hasCursor := args["cursor"]
	rawOffset, hasOffset := args["offset"]
	if hasCursor && rawCursor != nil {
		if hasOffset && rawOffset != nil {
			return 0, &InvalidCursorError{Operation: op.Name, Err: errors.New("cursor and offset are mutually exclusive")}
		}
		s, ok := rawCursor.(string)
		if !ok {
			return 0, &ArgumentTypeError{Operation: op.Name, Argument: "cursor", Expected: "String", Value: rawCursor}
		}
		offset, err := cursor.Decode(s, op.Name)
		if err != nil {
			return 0, &InvalidCursorError{Operation: op.Name, Err: err}
		}
		return offset, nil
	}
	if hasOffset && rawOffset != nil {
		n, err := toInt(rawOffset)
		if err != nil || n < 0 {
			return 0, &ArgumentTypeError{Operation: op.Name, Argument: "offset", Expected: "Int", Value: rawOffset}
		}
		return int(n), nil
	}
	return 0, nil
}

func resolveFilters(op *compiler.Operation, args map[string]any) (map[string]any, error) {
	filters := map[string]any{}
	for _, binding := range op.Bindings {
		value, err := resolveValue(op, binding, args)
		if err != nil {
			return nil, err
		}
		if value != nil {
			filters[binding.Argument] = value
		}
	}
	return filters, nil
}

// coerce converts a decoded JSON value to the Go representation bound into
// SQL for the given scalar type.
func coerce(value any, scalarType string) (any, error) {
	switch scalarType {
	case "ID", "String", "UUID", "DateTime", "Date":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string")
		}
		return s, nil
	case "Int":
		return toInt(value)
	case "Float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			return v.Float64()
		}
		return nil, fmt.Errorf("expected number")
	case "Boolean":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean")
		}
		return b, nil
	case "Decimal":
		switch v := value.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
		return nil, fmt.Errorf("expected decimal")
	default:
		return value, nil
	}
}

func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer")
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("not an integer")
	}
}
