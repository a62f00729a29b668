// Package compiler lowers a validated schema model into a compiled Artifact:
// one parameterized SQL template per operation, ordered placeholder bindings,
// a precomputed field visibility matrix, and the shape information the
// executor needs to interpret result rows. Everything request-independent
// happens here; the planner and executor never consult the schema model.
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"viewql/internal/naming"
	"viewql/internal/rbac"
	"viewql/internal/schema"
	"viewql/internal/sqlutil"
)

// Options tunes compilation.
type Options struct {
	// DefaultLimit is the page size applied when a paged query omits limit.
	DefaultLimit int
	// MaxLimit caps the limit a caller may request on paged queries.
	MaxLimit int
	// KnownCapabilities is the deployment's capability token vocabulary,
	// passed through to validation.
	KnownCapabilities []string
}

const (
	defaultPageLimit = 100
	defaultMaxLimit  = 1000
)

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = defaultPageLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = defaultMaxLimit
	}
	return o
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Compile validates the schema and lowers it into an artifact. Compilation
// is all or nothing: the first lowering error aborts and no partial artifact
// is produced.
func Compile(s *schema.Schema, opts Options) (*Artifact, error) {
	opts = opts.withDefaults()
	if errs, _ := schema.Validate(s, schema.ValidateOptions{KnownCapabilities: opts.KnownCapabilities}); len(errs) > 0 {
		return nil, &PreconditionError{Issues: errs}
	}

	hash, err := hashSchema(s)
	if err != nil {
		return nil, err
	}
	art := &Artifact{
		Version:    ArtifactVersion,
		SchemaName: s.Name,
		SchemaHash: hash,
		CompiledAt: time.Now().UTC(),
		Types:      map[string]TypeShape{},
		Operations: map[string]*Operation{},
		Visibility: rbac.CompileMatrix(s),
	}

	for _, t := range s.Types {
		fieldTypes := make(map[string]string, len(t.Fields))
		for _, f := range t.Fields {
			fieldTypes[f.Name] = f.Type
		}
		art.Types[t.Name] = TypeShape{
			Name:       t.Name,
			JSONColumn: t.PayloadColumn(),
			FieldTypes: fieldTypes,
		}
	}

	add := func(op *Operation) error {
		if _, dup := art.Operations[op.Name]; dup {
			return &DuplicateOperationError{Name: op.Name}
		}
		art.Operations[op.Name] = op
		return nil
	}

	for _, q := range s.Queries {
		op, err := lowerQuery(s, q, opts)
		if err != nil {
			return nil, err
		}
		if err := add(op); err != nil {
			return nil, err
		}
	}
	for _, m := range s.Mutations {
		op, err := lowerMutation(m)
		if err != nil {
			return nil, err
		}
		if err := add(op); err != nil {
			return nil, err
		}
	}
	for _, sub := range s.Subscriptions {
		if err := add(lowerSubscription(sub)); err != nil {
			return nil, err
		}
	}
	for _, aq := range s.AggregateQueries {
		op, err := lowerAggregate(s, aq)
		if err != nil {
			return nil, err
		}
		if err := add(op); err != nil {
			return nil, err
		}
	}
	return art, nil
}

func lowerQuery(s *schema.Schema, q schema.QueryDefinition, opts Options) (*Operation, error) {
	ret := s.Type(q.ReturnType)
	preds, err := resolvePredicates("query."+q.Name, q.Arguments, ret)
	if err != nil {
		return nil, err
	}

	view, err := sqlutil.MustIdentifier(ret.SQLSource)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}
	b := psql.Select(sqlutil.QuoteIdentifier(ret.PayloadColumn())).From(view)

	bindings := make([]Binding, 0, len(preds)+2)
	for _, p := range preds {
		term, slots := p.sqlTerm()
		b = b.Where(sq.Expr(term, make([]any, slots)...))
		for i := 0; i < slots; i++ {
			bindings = append(bindings, p.binding)
		}
	}
	for _, term := range q.OrderBy {
		b = b.OrderBy(orderExpr(term, ret))
	}

	paged := false
	switch {
	case !q.ReturnsList:
		b = b.Suffix("LIMIT 1")
	case q.AutoParams.Limit && q.AutoParams.Offset:
		b = b.Suffix("LIMIT ? OFFSET ?", nil, nil)
		bindings = append(bindings, Binding{Kind: BindLimit}, Binding{Kind: BindOffset})
		paged = true
	case q.AutoParams.Limit:
		b = b.Suffix("LIMIT ?", nil)
		bindings = append(bindings, Binding{Kind: BindLimit})
		paged = true
	}

	sqlText, _, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("query %s: building sql: %w", q.Name, err)
	}

	op := &Operation{
		Name:        q.Name,
		Kind:        OpQuery,
		ReturnType:  q.ReturnType,
		ReturnsList: q.ReturnsList,
		Nullable:    q.Nullable,
		SQL:         sqlText,
		Bindings:    bindings,
		Paged:       paged,
		Guard:       rbac.CompileGuard(q.Access),
	}
	if paged {
		op.DefaultLimit = opts.DefaultLimit
		op.MaxLimit = opts.MaxLimit
	}
	return op, nil
}

var writeVerbs = map[schema.WriteKind]string{
	schema.WriteCreate: "created",
	schema.WriteUpdate: "updated",
	schema.WriteDelete: "deleted",
}

func lowerMutation(m schema.MutationDefinition) (*Operation, error) {
	fn, err := sqlutil.MustIdentifier(m.Function)
	if err != nil {
		return nil, fmt.Errorf("mutation %s: %w", m.Name, err)
	}

	placeholders := make([]string, len(m.Arguments))
	bindings := make([]Binding, len(m.Arguments))
	for i, arg := range m.Arguments {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		bindings[i] = Binding{
			Argument: arg.Name,
			Kind:     BindValue,
			Type:     arg.Type,
			Required: arg.Required,
			Default:  arg.Default,
		}
	}

	topic := m.Topic
	if topic == "" {
		if verb, ok := writeVerbs[m.WriteKind]; ok && m.ReturnType != schema.VoidType {
			topic = naming.TopicForEntity(m.ReturnType, verb)
		}
	}

	return &Operation{
		Name:       m.Name,
		Kind:       OpMutation,
		ReturnType: m.ReturnType,
		SQL:        fmt.Sprintf("SELECT * FROM %s(%s)", fn, strings.Join(placeholders, ", ")),
		Bindings:   bindings,
		Topic:      topic,
		WriteKind:  string(m.WriteKind),
		Guard:      rbac.CompileGuard(m.Access),
	}, nil
}

func lowerSubscription(sub schema.SubscriptionDefinition) *Operation {
	filters := make([]string, len(sub.Arguments))
	bindings := make([]Binding, len(sub.Arguments))
	for i, arg := range sub.Arguments {
		filters[i] = arg.Name
		bindings[i] = Binding{
			Argument: arg.Name,
			Kind:     BindValue,
			Type:     arg.Type,
			Required: arg.Required,
			Default:  arg.Default,
		}
	}
	return &Operation{
		Name:       sub.Name,
		Kind:       OpSubscription,
		ReturnType: sub.ReturnType,
		Topic:      sub.Topic,
		Bindings:   bindings,
		FilterArgs: filters,
		Guard:      rbac.CompileGuard(sub.Access),
	}
}

func hashSchema(s *schema.Schema) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("hashing schema: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
