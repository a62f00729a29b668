package compiler

import (
	"fmt"

	"viewql/internal/naming"
	"viewql/internal/schema"
	"viewql/internal/sqlutil"
)

// sqlOperators maps argument operator metadata to SQL comparison operators.
var sqlOperators = map[string]string{
	"":     "=",
	"eq":   "=",
	"neq":  "<>",
	"gt":   ">",
	"gte":  ">=",
	"lt":   "<",
	"lte":  "<=",
	"like": "LIKE",
}

// sqlCasts maps schema scalar types to the PostgreSQL types JSONB text
// extractions are cast to before comparison.
var sqlCasts = map[string]string{
	"ID":       "text",
	"String":   "text",
	"Int":      "bigint",
	"Float":    "double precision",
	"Boolean":  "boolean",
	"DateTime": "timestamptz",
	"Date":     "date",
	"UUID":     "uuid",
	"Decimal":  "numeric",
}

func castFor(scalarType string) string {
	if cast, ok := sqlCasts[scalarType]; ok {
		return cast
	}
	return "text"
}

// predicate is one compiled WHERE term: a target expression compared to a
// placeholder under op. Optional predicates compile with a NULL guard so an
// omitted argument disables the filter instead of comparing against NULL,
// which in PostgreSQL never matches.
type predicate struct {
	expr     string
	op       string
	cast     string
	optional bool
	binding  Binding
}

// sqlTerm renders the WHERE term and reports how many placeholders it binds.
func (p predicate) sqlTerm() (string, int) {
	if p.optional {
		return "(?::" + p.cast + " IS NULL OR " + p.expr + " " + p.op + " ?)", 2
	}
	return p.expr + " " + p.op + " ?", 1
}

// reserved auto parameter names; never bindable as field predicates.
var autoParamNames = map[string]struct{}{
	"limit":  {},
	"offset": {},
	"cursor": {},
}

// resolvePredicates binds each declared argument to exactly one field of the
// return type, producing WHERE terms in declared argument order.
func resolvePredicates(opName string, args []schema.ArgumentDefinition, ret *schema.TypeDefinition) ([]predicate, error) {
	payload := sqlutil.QuoteIdentifier(ret.PayloadColumn())
	preds := make([]predicate, 0, len(args))
	for _, arg := range args {
		if _, reserved := autoParamNames[arg.Name]; reserved {
			return nil, &UnboundArgumentError{Operation: opName, Argument: arg.Name}
		}
		sqlOp, ok := sqlOperators[arg.Op]
		if !ok {
			return nil, &UnknownOperatorError{Operation: opName, Argument: arg.Name, Op: arg.Op}
		}
		field, err := bindField(opName, arg.Name, ret)
		if err != nil {
			return nil, err
		}
		var expr string
		if field.FilterColumn != "" {
			expr = sqlutil.QuoteIdentifier(field.FilterColumn)
		} else {
			expr = fmt.Sprintf("(%s->>%s)::%s", payload, sqlutil.QuoteString(field.Name), castFor(field.Type))
		}
		preds = append(preds, predicate{
			expr:     expr,
			op:       sqlOp,
			cast:     castFor(arg.Type),
			optional: !arg.Required && arg.Default == nil,
			binding: Binding{
				Argument: arg.Name,
				Kind:     BindValue,
				Type:     arg.Type,
				Required: arg.Required,
				Default:  arg.Default,
			},
		})
	}
	return preds, nil
}

// bindField finds the single return-type field whose normalized name matches
// the argument name.
func bindField(opName, argName string, ret *schema.TypeDefinition) (*schema.FieldDefinition, error) {
	want := naming.Normalize(argName)
	var matches []*schema.FieldDefinition
	for i := range ret.Fields {
		if naming.Normalize(ret.Fields[i].Name) == want {
			matches = append(matches, &ret.Fields[i])
		}
	}
	switch len(matches) {
	case 0:
		return nil, &UnboundArgumentError{Operation: opName, Argument: argName}
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, f := range matches {
			names[i] = f.Name
		}
		return nil, &AmbiguousBindingError{Operation: opName, Argument: argName, Fields: names}
	}
}

// orderExpr compiles one fixed ORDER BY term against the return type.
func orderExpr(term schema.OrderTerm, ret *schema.TypeDefinition) string {
	var expr string
	if field := ret.Field(term.Field); field != nil && field.FilterColumn != "" {
		expr = sqlutil.QuoteIdentifier(field.FilterColumn)
	} else {
		payload := sqlutil.QuoteIdentifier(ret.PayloadColumn())
		expr = fmt.Sprintf("%s->>%s", payload, sqlutil.QuoteString(term.Field))
	}
	if term.Descending {
		return expr + " DESC"
	}
	return expr + " ASC"
}
