// Package schema defines the authoring model for a viewql schema: the JSON
// document that names types, queries, mutations, subscriptions, and fact
// tables, together with their SQL bindings. The model is validated by
// Validate and lowered into an executable artifact by the compiler; it is
// never consulted at request time.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// DefaultJSONColumn is the view column holding the entity payload when a
// type does not name one.
const DefaultJSONColumn = "data"

// scalarTypes is the built-in scalar vocabulary usable in field and argument
// type references. It mirrors the comparison casts the compiler emits.
var scalarTypes = map[string]struct{}{
	"ID":       {},
	"String":   {},
	"Int":      {},
	"Float":    {},
	"Boolean":  {},
	"DateTime": {},
	"Date":     {},
	"UUID":     {},
	"Decimal":  {},
}

// KnownScalar reports whether name is a built-in scalar type.
func KnownScalar(name string) bool {
	_, ok := scalarTypes[name]
	return ok
}

// Schema is the root of an authored schema document.
type Schema struct {
	Name             string                     `json:"name,omitempty"`
	Types            []TypeDefinition           `json:"types"`
	Queries          []QueryDefinition          `json:"queries,omitempty"`
	Mutations        []MutationDefinition       `json:"mutations,omitempty"`
	Subscriptions    []SubscriptionDefinition   `json:"subscriptions,omitempty"`
	FactTables       []FactTableDefinition      `json:"fact_tables,omitempty"`
	AggregateQueries []AggregateQueryDefinition `json:"aggregate_queries,omitempty"`
}

// TypeDefinition describes an entity type backed by a database view. The
// view exposes the entity as a single JSONB column plus optional denormalized
// filter columns declared on individual fields.
type TypeDefinition struct {
	Name        string            `json:"name"`
	SQLSource   string            `json:"sql_source"`
	JSONColumn  string            `json:"jsonb_column,omitempty"`
	Fields      []FieldDefinition `json:"fields"`
	Description string            `json:"description,omitempty"`
}

// PayloadColumn returns the JSONB column carrying the entity payload.
func (t *TypeDefinition) PayloadColumn() string {
	if t.JSONColumn != "" {
		return t.JSONColumn
	}
	return DefaultJSONColumn
}

// Field returns the field with the given name, or nil.
func (t *TypeDefinition) Field(name string) *FieldDefinition {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// FieldDefinition describes one field of an entity type.
type FieldDefinition struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Nullable    bool   `json:"nullable,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`

	// FilterColumn names a denormalized view column usable in WHERE clauses
	// instead of a JSONB path extraction.
	FilterColumn string `json:"filter_column,omitempty"`

	// Access restricts field visibility per capability token. A field with
	// no rule is public.
	Access *AccessRule `json:"access,omitempty"`

	Deprecated string `json:"deprecated,omitempty"`
}

// AccessKind is the decision an access rule yields for one capability token.
type AccessKind string

const (
	// AccessAllow makes the guarded item visible to holders of the token.
	AccessAllow AccessKind = "allow"
	// AccessAllowOwn makes the item visible only on rows owned by the
	// caller, compared through the rule's owner field.
	AccessAllowOwn AccessKind = "allow_own"
	// AccessDeny hides the item from holders of the token.
	AccessDeny AccessKind = "deny"
)

// AccessEntry is the decision for a single capability token.
type AccessEntry struct {
	Kind AccessKind `json:"kind"`
	// OwnerField names the payload field compared against the caller's
	// subject for allow_own entries.
	OwnerField string `json:"owner_field,omitempty"`
}

// AccessRule maps capability tokens to visibility decisions. The presence of
// a rule makes the guarded item deny-by-default: callers holding none of the
// listed tokens do not see it.
type AccessRule struct {
	Tokens map[string]AccessEntry `json:"tokens"`
}

// ArgumentDefinition describes one declared operation argument. Order is
// significant for mutations, whose stored function is called positionally.
type ArgumentDefinition struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Default  any    `json:"default,omitempty"`

	// Op selects the comparison operator a query argument applies to its
	// bound field: eq, neq, gt, gte, lt, lte, like. Empty means eq.
	Op string `json:"op,omitempty"`

	Description string `json:"description,omitempty"`
}

// AutoParams lists the pagination and ordering parameters a query opts into.
type AutoParams struct {
	Limit  bool `json:"limit,omitempty"`
	Offset bool `json:"offset,omitempty"`
}

// OrderTerm is one fixed ORDER BY term compiled into a query.
type OrderTerm struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// QueryDefinition describes a read operation over an entity view.
type QueryDefinition struct {
	Name        string               `json:"name"`
	ReturnType  string               `json:"return_type"`
	ReturnsList bool                 `json:"returns_list,omitempty"`
	Nullable    bool                 `json:"nullable,omitempty"`
	Arguments   []ArgumentDefinition `json:"arguments,omitempty"`
	AutoParams  AutoParams           `json:"auto_params,omitempty"`
	OrderBy     []OrderTerm          `json:"order_by,omitempty"`
	Access      *AccessRule          `json:"access,omitempty"`
	Description string               `json:"description,omitempty"`
}

// WriteKind classifies a mutation for topic derivation.
type WriteKind string

const (
	WriteCreate WriteKind = "create"
	WriteUpdate WriteKind = "update"
	WriteDelete WriteKind = "delete"
)

// VoidType is the return type of mutations that produce no entity payload.
// Such mutations report an affected-row count instead.
const VoidType = "Void"

// MutationDefinition describes a write operation backed by a stored
// function. Arguments are passed to the function positionally, in declared
// order.
type MutationDefinition struct {
	Name        string               `json:"name"`
	ReturnType  string               `json:"return_type"`
	Function    string               `json:"function"`
	WriteKind   WriteKind            `json:"write_kind,omitempty"`
	Arguments   []ArgumentDefinition `json:"arguments,omitempty"`
	Topic       string               `json:"topic,omitempty"`
	Access      *AccessRule          `json:"access,omitempty"`
	Description string               `json:"description,omitempty"`
}

// SubscriptionDefinition describes a topic-backed event stream. Arguments
// become exact-match filters against event payload fields.
type SubscriptionDefinition struct {
	Name        string               `json:"name"`
	ReturnType  string               `json:"return_type"`
	Topic       string               `json:"topic"`
	Arguments   []ArgumentDefinition `json:"arguments,omitempty"`
	Access      *AccessRule          `json:"access,omitempty"`
	Description string               `json:"description,omitempty"`
}

// MeasureDefinition describes a numeric fact-table column and the
// aggregation functions authors may apply to it.
type MeasureDefinition struct {
	Name         string   `json:"name"`
	Column       string   `json:"column,omitempty"`
	SQLType      string   `json:"sql_type,omitempty"`
	Aggregations []string `json:"aggregations"`
}

// SQLColumn returns the measure's backing column, defaulting to its name.
func (m *MeasureDefinition) SQLColumn() string {
	if m.Column != "" {
		return m.Column
	}
	return m.Name
}

// Allows reports whether fn is a permitted aggregation for this measure.
func (m *MeasureDefinition) Allows(fn string) bool {
	for _, a := range m.Aggregations {
		if a == fn {
			return true
		}
	}
	return false
}

// DimensionDefinition describes a fact-table grouping column or expression.
type DimensionDefinition struct {
	Name       string `json:"name"`
	Expression string `json:"expression,omitempty"`
}

// SQLExpression returns the dimension's SQL expression, defaulting to its
// name as a bare column reference.
func (d *DimensionDefinition) SQLExpression() string {
	if d.Expression != "" {
		return d.Expression
	}
	return d.Name
}

// FactTableDefinition describes an aggregation source table. By convention
// fact tables carry a tf_ prefix, though the name is not enforced.
type FactTableDefinition struct {
	Name       string                `json:"name"`
	Table      string                `json:"table"`
	Dimensions []DimensionDefinition `json:"dimensions"`
	Measures   []MeasureDefinition   `json:"measures"`
}

// Dimension returns the named dimension, or nil.
func (f *FactTableDefinition) Dimension(name string) *DimensionDefinition {
	for i := range f.Dimensions {
		if f.Dimensions[i].Name == name {
			return &f.Dimensions[i]
		}
	}
	return nil
}

// Measure returns the named measure, or nil.
func (f *FactTableDefinition) Measure(name string) *MeasureDefinition {
	for i := range f.Measures {
		if f.Measures[i].Name == name {
			return &f.Measures[i]
		}
	}
	return nil
}

// MeasureSelection names one aggregated output column of an aggregate query.
type MeasureSelection struct {
	Measure     string `json:"measure"`
	Aggregation string `json:"aggregation"`
	Alias       string `json:"alias,omitempty"`
}

// OutputAlias returns the result column name for this selection.
func (s *MeasureSelection) OutputAlias() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Aggregation + "_" + s.Measure
}

// AggregateQueryDefinition describes a grouped read over a fact table.
// Filters become bound predicates against dimension expressions.
type AggregateQueryDefinition struct {
	Name        string               `json:"name"`
	FactTable   string               `json:"fact_table"`
	Dimensions  []string             `json:"dimensions,omitempty"`
	Measures    []MeasureSelection   `json:"measures"`
	Filters     []ArgumentDefinition `json:"filters,omitempty"`
	OrderBy     []OrderTerm          `json:"order_by,omitempty"`
	Access      *AccessRule          `json:"access,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Type returns the named type definition, or nil.
func (s *Schema) Type(name string) *TypeDefinition {
	for i := range s.Types {
		if s.Types[i].Name == name {
			return &s.Types[i]
		}
	}
	return nil
}

// FactTable returns the named fact table definition, or nil.
func (s *Schema) FactTable(name string) *FactTableDefinition {
	for i := range s.FactTables {
		if s.FactTables[i].Name == name {
			return &s.FactTables[i]
		}
	}
	return nil
}

// Parse decodes a schema document from JSON. Unknown fields are rejected so
// that typos in authored documents fail early rather than silently.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return &s, nil
}

// Load reads and parses a schema document from a file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return Parse(data)
}
