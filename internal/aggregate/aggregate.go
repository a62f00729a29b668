// Package aggregate executes compiled fact-table aggregation plans. Measure
// values travel as json.Number end to end so fixed-point SQL types are never
// widened through float64.
package aggregate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"viewql/internal/dbexec"
	"viewql/internal/executor"
	"viewql/internal/planner"
)

// Row pairs one group's dimension values with its aggregated measures.
type Row struct {
	Dimensions map[string]any         `json:"dimensions"`
	Measures   map[string]json.Number `json:"measures"`
}

// Engine executes aggregate plans.
type Engine struct {
	exec dbexec.QueryExecutor
}

// New creates an aggregation engine.
func New(exec dbexec.QueryExecutor) *Engine {
	return &Engine{exec: exec}
}

// Run executes an aggregate plan and returns one Row per group, in the
// plan's SQL ordering. An empty group set yields an empty slice, never nil.
func (e *Engine) Run(ctx context.Context, plan *planner.ExecutionPlan) ([]Row, error) {
	shape := plan.Aggregate
	if shape == nil {
		return nil, fmt.Errorf("plan %q carries no aggregate shape", plan.Operation)
	}

	rows, err := e.exec.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, executor.Classify(plan.Operation, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, executor.Classify(plan.Operation, err)
	}
	want := len(shape.Dimensions) + len(shape.Measures)
	if len(cols) != want {
		return nil, &executor.UnexpectedRowShapeError{
			Operation: plan.Operation,
			Detail:    fmt.Sprintf("expected %d column(s), got %d", want, len(cols)),
		}
	}

	out := []Row{}
	for rows.Next() {
		dims := make([]any, len(shape.Dimensions))
		dests := make([]any, 0, want)
		for i := range dims {
			dests = append(dests, &dims[i])
		}
		measures := make([]sql.NullString, len(shape.Measures))
		for i := range measures {
			dests = append(dests, &measures[i])
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, executor.Classify(plan.Operation, err)
		}

		row := Row{
			Dimensions: make(map[string]any, len(shape.Dimensions)),
			Measures:   make(map[string]json.Number, len(shape.Measures)),
		}
		for i, name := range shape.Dimensions {
			row.Dimensions[name] = normalizeDimension(dims[i])
		}
		for i, name := range shape.Measures {
			if !measures[i].Valid {
				continue
			}
			row.Measures[name] = json.Number(measures[i].String)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, executor.Classify(plan.Operation, err)
	}
	return out, nil
}

// normalizeDimension converts driver byte slices to strings so dimension
// values serialize as JSON strings rather than base64.
func normalizeDimension(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
