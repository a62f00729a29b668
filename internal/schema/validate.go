package schema

import (
	"fmt"

	"viewql/internal/sqlutil"
)

// ValidationError is a single structural problem in an authored schema.
// Path locates the offending element (for example "query.userById" or
// "type.User.field.ssn").
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationWarning flags a suspicious but non-fatal schema element.
type ValidationWarning struct {
	Path    string
	Message string
}

// ValidateOptions tunes validation behavior.
type ValidateOptions struct {
	// KnownCapabilities, when non-empty, is the vocabulary of capability
	// tokens the deployment recognizes. Access rules naming tokens outside
	// it produce warnings.
	KnownCapabilities []string
}

// Validate checks an authored schema for structural problems. Checks run in
// a fixed order (uniqueness, reference resolution, SQL bindings, fact table
// shape, aggregation functions, capability vocabulary) and all findings are
// collected rather than stopping at the first. The schema is not modified.
func Validate(s *Schema, opts ValidateOptions) ([]ValidationError, []ValidationWarning) {
	v := &validator{schema: s, known: toSet(opts.KnownCapabilities)}
	v.checkUniqueness()
	v.checkReferences()
	v.checkBindings()
	v.checkFactTables()
	v.checkAggregations()
	v.checkCapabilities()
	return v.errs, v.warns
}

type validator struct {
	schema *Schema
	known  map[string]struct{}
	errs   []ValidationError
	warns  []ValidationWarning
}

func (v *validator) errorf(path, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) warnf(path, format string, args ...any) {
	v.warns = append(v.warns, ValidationWarning{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) checkUniqueness() {
	seen := map[string]string{}
	unique := func(kind, name string) {
		key := kind + ":" + name
		if _, dup := seen[key]; dup {
			v.errorf(kind+"."+name, "duplicate %s name", kind)
			return
		}
		seen[key] = kind
	}
	for _, t := range v.schema.Types {
		unique("type", t.Name)
		fields := map[string]struct{}{}
		for _, f := range t.Fields {
			if _, dup := fields[f.Name]; dup {
				v.errorf(fmt.Sprintf("type.%s.field.%s", t.Name, f.Name), "duplicate field name")
			}
			fields[f.Name] = struct{}{}
		}
	}
	for _, q := range v.schema.Queries {
		unique("query", q.Name)
	}
	for _, m := range v.schema.Mutations {
		unique("mutation", m.Name)
	}
	for _, sub := range v.schema.Subscriptions {
		unique("subscription", sub.Name)
	}
	for _, ft := range v.schema.FactTables {
		unique("fact_table", ft.Name)
	}
	for _, aq := range v.schema.AggregateQueries {
		unique("aggregate_query", aq.Name)
	}
}

func (v *validator) checkReferences() {
	for _, t := range v.schema.Types {
		for _, f := range t.Fields {
			if !KnownScalar(f.Type) && v.schema.Type(f.Type) == nil {
				v.errorf(fmt.Sprintf("type.%s.field.%s", t.Name, f.Name), "unknown type %q", f.Type)
			}
		}
	}
	for _, q := range v.schema.Queries {
		if v.schema.Type(q.ReturnType) == nil {
			v.errorf("query."+q.Name, "unknown return type %q", q.ReturnType)
		}
		v.checkArgumentTypes("query."+q.Name, q.Arguments)
	}
	for _, m := range v.schema.Mutations {
		if m.ReturnType != VoidType && v.schema.Type(m.ReturnType) == nil {
			v.errorf("mutation."+m.Name, "unknown return type %q", m.ReturnType)
		}
		v.checkArgumentTypes("mutation."+m.Name, m.Arguments)
	}
	for _, sub := range v.schema.Subscriptions {
		if v.schema.Type(sub.ReturnType) == nil {
			v.errorf("subscription."+sub.Name, "unknown return type %q", sub.ReturnType)
		}
		v.checkArgumentTypes("subscription."+sub.Name, sub.Arguments)
	}
	for _, aq := range v.schema.AggregateQueries {
		v.checkArgumentTypes("aggregate_query."+aq.Name, aq.Filters)
		ft := v.schema.FactTable(aq.FactTable)
		if ft == nil {
			v.errorf("aggregate_query."+aq.Name, "unknown fact table %q", aq.FactTable)
			continue
		}
		for _, dim := range aq.Dimensions {
			if ft.Dimension(dim) == nil {
				v.errorf("aggregate_query."+aq.Name, "unknown dimension %q in fact table %q", dim, ft.Name)
			}
		}
		for _, sel := range aq.Measures {
			if ft.Measure(sel.Measure) == nil {
				v.errorf("aggregate_query."+aq.Name, "unknown measure %q in fact table %q", sel.Measure, ft.Name)
			}
		}
	}
}

// checkArgumentTypes requires every declared argument to carry a built-in
// scalar type. Argument values are coerced before binding; a type outside
// the vocabulary would bind uncoerced and skip type checking entirely.
func (v *validator) checkArgumentTypes(path string, args []ArgumentDefinition) {
	for _, a := range args {
		if !KnownScalar(a.Type) {
			v.errorf(path, "argument %q has unknown scalar type %q", a.Name, a.Type)
		}
	}
}

func (v *validator) checkBindings() {
	for _, t := range v.schema.Types {
		if t.SQLSource == "" {
			v.errorf("type."+t.Name, "missing sql_source")
		} else if !sqlutil.ValidIdentifier(t.SQLSource) {
			v.errorf("type."+t.Name, "invalid sql_source %q", t.SQLSource)
		}
		for _, f := range t.Fields {
			if f.FilterColumn != "" && !sqlutil.ValidIdentifier(f.FilterColumn) {
				v.errorf(fmt.Sprintf("type.%s.field.%s", t.Name, f.Name), "invalid filter_column %q", f.FilterColumn)
			}
		}
	}
	for _, m := range v.schema.Mutations {
		if m.Function == "" {
			v.errorf("mutation."+m.Name, "missing function")
		} else if !sqlutil.ValidIdentifier(m.Function) {
			v.errorf("mutation."+m.Name, "invalid function %q", m.Function)
		}
	}
	for _, sub := range v.schema.Subscriptions {
		if sub.Topic == "" {
			v.errorf("subscription."+sub.Name, "missing topic")
		}
	}
	for _, ft := range v.schema.FactTables {
		if ft.Table == "" {
			v.errorf("fact_table."+ft.Name, "missing table")
		} else if !sqlutil.ValidIdentifier(ft.Table) {
			v.errorf("fact_table."+ft.Name, "invalid table %q", ft.Table)
		}
	}
}

func (v *validator) checkFactTables() {
	for _, ft := range v.schema.FactTables {
		names := map[string]string{}
		for _, d := range ft.Dimensions {
			names[d.Name] = "dimension"
		}
		for _, m := range ft.Measures {
			if kind, clash := names[m.Name]; clash {
				v.errorf(fmt.Sprintf("fact_table.%s.%s", ft.Name, m.Name), "measure name collides with %s", kind)
			}
			if len(m.Aggregations) == 0 {
				v.errorf(fmt.Sprintf("fact_table.%s.%s", ft.Name, m.Name), "measure declares no aggregations")
			}
		}
	}
}

func (v *validator) checkAggregations() {
	for _, aq := range v.schema.AggregateQueries {
		ft := v.schema.FactTable(aq.FactTable)
		if ft == nil {
			continue
		}
		for _, sel := range aq.Measures {
			m := ft.Measure(sel.Measure)
			if m == nil {
				continue
			}
			if !m.Allows(sel.Aggregation) {
				v.errorf("aggregate_query."+aq.Name,
					"aggregation %q not allowed on measure %q (allowed: %v)", sel.Aggregation, m.Name, m.Aggregations)
			}
		}
	}
}

func (v *validator) checkCapabilities() {
	check := func(path string, rule *AccessRule) {
		if rule == nil {
			return
		}
		for token, entry := range rule.Tokens {
			switch entry.Kind {
			case AccessAllow, AccessDeny:
			case AccessAllowOwn:
				if entry.OwnerField == "" {
					v.errorf(path, "allow_own entry for token %q needs an owner_field", token)
				}
			default:
				v.errorf(path, "unknown access kind %q for token %q", entry.Kind, token)
			}
			if len(v.known) > 0 {
				if _, ok := v.known[token]; !ok {
					v.warnf(path, "unknown capability token %q", token)
				}
			}
		}
	}
	for _, t := range v.schema.Types {
		for _, f := range t.Fields {
			check(fmt.Sprintf("type.%s.field.%s", t.Name, f.Name), f.Access)
		}
	}
	for _, q := range v.schema.Queries {
		check("query."+q.Name, q.Access)
	}
	for _, m := range v.schema.Mutations {
		check("mutation."+m.Name, m.Access)
	}
	for _, sub := range v.schema.Subscriptions {
		check("subscription."+sub.Name, sub.Access)
	}
	for _, aq := range v.schema.AggregateQueries {
		check("aggregate_query."+aq.Name, aq.Access)
	}
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
