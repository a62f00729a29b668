// Package executor runs resolved execution plans against the database. It
// owns result-row interpretation: decoding JSONB payloads, applying the
// caller's field projection, trimming over-fetched pages, and mapping driver
// failures onto the engine error taxonomy. Each plan is executed exactly
// once; retry policy belongs to callers.
package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"viewql/internal/compiler"
	"viewql/internal/dbexec"
	"viewql/internal/planner"
	"viewql/internal/schema"
)

// Publisher receives successful mutation events for fan-out.
type Publisher interface {
	Publish(topic string, payload map[string]any)
}

// Result is the outcome of one plan execution.
type Result struct {
	// Object holds the single decoded entity, nil when a nullable query
	// matched nothing.
	Object map[string]any
	// List holds the page of decoded entities for list queries.
	List []map[string]any
	// HasNextPage reports that a further page exists beyond List.
	HasNextPage bool
	// Affected is the row count reported by void mutations.
	Affected int64
}

// Engine executes query and mutation plans.
type Engine struct {
	exec      dbexec.QueryExecutor
	publisher Publisher
	logger    *slog.Logger
}

// New creates an engine. publisher may be nil when no dispatcher is wired.
func New(exec dbexec.QueryExecutor, publisher Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{exec: exec, publisher: publisher, logger: logger}
}

// Execute runs a query or mutation plan once.
func (e *Engine) Execute(ctx context.Context, plan *planner.ExecutionPlan) (*Result, error) {
	switch plan.Kind {
	case compiler.OpQuery:
		return e.runQuery(ctx, plan)
	case compiler.OpMutation:
		return e.runMutation(ctx, plan)
	default:
		return nil, fmt.Errorf("plan kind %q is not executable here", plan.Kind)
	}
}

func (e *Engine) runQuery(ctx context.Context, plan *planner.ExecutionPlan) (*Result, error) {
	rows, err := e.exec.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, Classify(plan.Operation, err)
	}
	defer rows.Close()

	if err := expectColumns(plan.Operation, rows, 1); err != nil {
		return nil, err
	}

	var objects []map[string]any
	for rows.Next() {
		obj, err := scanPayload(plan.Operation, rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(plan.Operation, err)
	}

	for _, obj := range objects {
		plan.Projection.Redact(obj, plan.Subject)
	}

	if !plan.ReturnsList {
		if len(objects) == 0 {
			if plan.Nullable {
				return &Result{}, nil
			}
			return nil, &NotFoundError{Operation: plan.Operation}
		}
		return &Result{Object: objects[0]}, nil
	}

	res := &Result{List: objects}
	if plan.Paged && plan.Limit > 0 && len(objects) > plan.Limit {
		res.List = objects[:plan.Limit]
		res.HasNextPage = true
	}
	if res.List == nil {
		res.List = []map[string]any{}
	}
	return res, nil
}

func (e *Engine) runMutation(ctx context.Context, plan *planner.ExecutionPlan) (*Result, error) {
	rows, err := e.exec.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, Classify(plan.Operation, err)
	}
	defer rows.Close()

	if plan.ReturnType == schema.VoidType {
		return e.scanAffected(plan, rows)
	}

	if err := expectColumns(plan.Operation, rows, 1); err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, Classify(plan.Operation, err)
		}
		return nil, &UnexpectedRowShapeError{Operation: plan.Operation, Detail: "function returned no row"}
	}
	obj, err := scanPayload(plan.Operation, rows)
	if err != nil {
		return nil, err
	}
	if rows.Next() {
		return nil, &UnexpectedRowShapeError{Operation: plan.Operation, Detail: "function returned more than one row"}
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(plan.Operation, err)
	}

	if e.publisher != nil && plan.Topic != "" {
		e.publisher.Publish(plan.Topic, clone(obj))
	}

	plan.Projection.Redact(obj, plan.Subject)
	return &Result{Object: obj}, nil
}

func (e *Engine) scanAffected(plan *planner.ExecutionPlan, rows dbexec.Rows) (*Result, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, Classify(plan.Operation, err)
		}
		return &Result{}, nil
	}
	var n sql.NullInt64
	if err := rows.Scan(&n); err != nil {
		return nil, &UnexpectedRowShapeError{Operation: plan.Operation, Detail: "void function did not return a row count"}
	}
	return &Result{Affected: n.Int64}, nil
}

func expectColumns(operation string, rows dbexec.Rows, want int) error {
	cols, err := rows.Columns()
	if err != nil {
		return Classify(operation, err)
	}
	if len(cols) != want {
		return &UnexpectedRowShapeError{
			Operation: operation,
			Detail:    fmt.Sprintf("expected %d column(s), got %d", want, len(cols)),
		}
	}
	return nil
}

// scanPayload reads one row's JSONB column into a decoded object.
func scanPayload(operation string, rows dbexec.Rows) (map[string]any, error) {
	var raw any
	if err := rows.Scan(&raw); err != nil {
		return nil, Classify(operation, err)
	}
	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		return nil, &UnexpectedRowShapeError{Operation: operation, Detail: "payload column is null"}
	default:
		return nil, &UnexpectedRowShapeError{Operation: operation, Detail: fmt.Sprintf("payload column has type %T", raw)}
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &UnexpectedRowShapeError{Operation: operation, Detail: "payload is not a JSON object"}
	}
	return obj, nil
}

func clone(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}
