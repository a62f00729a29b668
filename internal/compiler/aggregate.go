package compiler

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"viewql/internal/naming"
	"viewql/internal/rbac"
	"viewql/internal/schema"
	"viewql/internal/sqlutil"
)

// aggregationFunctions is the set of SQL aggregation functions the compiler
// emits. Validation checks selections against the measure's allow list; this
// is the compiler's own vocabulary.
var aggregationFunctions = map[string]string{
	"sum":   "sum",
	"avg":   "avg",
	"min":   "min",
	"max":   "max",
	"count": "count",
}

func lowerAggregate(s *schema.Schema, aq schema.AggregateQueryDefinition) (*Operation, error) {
	opName := "aggregate." + aq.Name
	ft := s.FactTable(aq.FactTable)

	table, err := sqlutil.MustIdentifier(ft.Table)
	if err != nil {
		return nil, fmt.Errorf("aggregate query %s: %w", aq.Name, err)
	}

	shape := &AggregateShape{}
	columns := make([]string, 0, len(aq.Dimensions)+len(aq.Measures))
	groupBy := make([]string, 0, len(aq.Dimensions))
	for _, dimName := range aq.Dimensions {
		dim := ft.Dimension(dimName)
		expr := dim.SQLExpression()
		columns = append(columns, expr+" AS "+sqlutil.QuoteIdentifier(dim.Name))
		groupBy = append(groupBy, expr)
		shape.Dimensions = append(shape.Dimensions, dim.Name)
	}
	for _, sel := range aq.Measures {
		fn, ok := aggregationFunctions[sel.Aggregation]
		if !ok {
			return nil, &UnknownAggregationFunctionError{Operation: opName, Function: sel.Aggregation}
		}
		measure := ft.Measure(sel.Measure)
		alias := sel.OutputAlias()
		columns = append(columns,
			fmt.Sprintf("%s(%s) AS %s", fn, sqlutil.QuoteIdentifier(measure.SQLColumn()), sqlutil.QuoteIdentifier(alias)))
		shape.Measures = append(shape.Measures, alias)
	}

	b := psql.Select(columns...).From(table)

	bindings := make([]Binding, 0, len(aq.Filters))
	for _, filter := range aq.Filters {
		sqlOp, ok := sqlOperators[filter.Op]
		if !ok {
			return nil, &UnknownOperatorError{Operation: opName, Argument: filter.Name, Op: filter.Op}
		}
		dim := bindDimension(ft, filter.Name)
		if dim == nil {
			return nil, &UnboundArgumentError{Operation: opName, Argument: filter.Name}
		}
		p := predicate{
			expr:     dim.SQLExpression(),
			op:       sqlOp,
			cast:     castFor(filter.Type),
			optional: !filter.Required && filter.Default == nil,
			binding: Binding{
				Argument: filter.Name,
				Kind:     BindValue,
				Type:     filter.Type,
				Required: filter.Required,
				Default:  filter.Default,
			},
		}
		term, slots := p.sqlTerm()
		b = b.Where(sq.Expr(term, make([]any, slots)...))
		for i := 0; i < slots; i++ {
			bindings = append(bindings, p.binding)
		}
	}

	if len(groupBy) > 0 {
		b = b.GroupBy(groupBy...)
	}
	for _, term := range aq.OrderBy {
		b = b.OrderBy(aggregateOrderExpr(ft, term))
	}

	sqlText, _, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("aggregate query %s: building sql: %w", aq.Name, err)
	}

	return &Operation{
		Name:        aq.Name,
		Kind:        OpAggregate,
		ReturnsList: true,
		SQL:         sqlText,
		Bindings:    bindings,
		Guard:       rbac.CompileGuard(aq.Access),
		Aggregate:   shape,
	}, nil
}

func bindDimension(ft *schema.FactTableDefinition, argName string) *schema.DimensionDefinition {
	want := naming.Normalize(argName)
	for i := range ft.Dimensions {
		if naming.Normalize(ft.Dimensions[i].Name) == want {
			return &ft.Dimensions[i]
		}
	}
	return nil
}

// aggregateOrderExpr resolves an ORDER BY term: dimensions order by their
// expression, anything else (measure aliases) by quoted name.
func aggregateOrderExpr(ft *schema.FactTableDefinition, term schema.OrderTerm) string {
	var expr string
	if dim := ft.Dimension(term.Field); dim != nil {
		expr = dim.SQLExpression()
	} else {
		expr = sqlutil.QuoteIdentifier(term.Field)
	}
	if term.Descending {
		return expr + " DESC"
	}
	return expr + " ASC"
}
