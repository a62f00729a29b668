// Package rbac implements capability-token access control over entity
// payloads. Visibility is precomputed at compile time into a Matrix of
// per-field guards; at request time the caller's capability set is
// intersected with the guard to produce a Projection, and Redact applies the
// projection to decoded JSONB payloads. Hidden fields are removed from the
// object, never nulled, so their absence is indistinguishable from a field
// that was never present.
package rbac

import (
	"fmt"

	"viewql/internal/schema"
)

// Caller identifies the requesting principal.
type Caller struct {
	// Subject is the principal identifier compared against owner fields.
	Subject string
	// Capabilities is the set of capability tokens the caller holds.
	Capabilities []string
}

// HasCapability reports whether the caller holds the given token.
func (c Caller) HasCapability(token string) bool {
	for _, t := range c.Capabilities {
		if t == token {
			return true
		}
	}
	return false
}

// Guard is the compiled access rule for one field or operation: the tokens
// that allow, allow on owned rows, or deny. An item with a guard is hidden
// by default from callers holding none of the listed tokens.
type Guard struct {
	Allow    []string          `json:"allow,omitempty"`
	AllowOwn map[string]string `json:"allow_own,omitempty"`
	Deny     []string          `json:"deny,omitempty"`
}

// CompileGuard lowers an authored access rule into a Guard. Nil rules
// compile to nil (public).
func CompileGuard(rule *schema.AccessRule) *Guard {
	if rule == nil {
		return nil
	}
	g := &Guard{}
	for token, entry := range rule.Tokens {
		switch entry.Kind {
		case schema.AccessAllow:
			g.Allow = append(g.Allow, token)
		case schema.AccessAllowOwn:
			if g.AllowOwn == nil {
				g.AllowOwn = map[string]string{}
			}
			g.AllowOwn[token] = entry.OwnerField
		case schema.AccessDeny:
			g.Deny = append(g.Deny, token)
		}
	}
	return g
}

// Decision is the outcome of intersecting a guard with a capability set.
type Decision int

const (
	// Hidden removes the item for this caller.
	Hidden Decision = iota
	// Visible exposes the item unconditionally.
	Visible
	// VisibleOwn exposes the item only on rows the caller owns.
	VisibleOwn
)

// Resolve intersects the guard with the caller's capabilities. An explicit
// deny on any held token wins over any allow. A nil guard is public.
func (g *Guard) Resolve(caller Caller) (Decision, string) {
	if g == nil {
		return Visible, ""
	}
	for _, token := range g.Deny {
		if caller.HasCapability(token) {
			return Hidden, ""
		}
	}
	for _, token := range g.Allow {
		if caller.HasCapability(token) {
			return Visible, ""
		}
	}
	for token, ownerField := range g.AllowOwn {
		if caller.HasCapability(token) {
			return VisibleOwn, ownerField
		}
	}
	return Hidden, ""
}

// Matrix holds the compiled guards for every access-controlled field, keyed
// by type name then field name. Fields without guards are absent and public.
// Refs records which fields nest another declared type, so redaction can
// descend through the returned object graph.
type Matrix struct {
	Fields map[string]map[string]*Guard `json:"fields,omitempty"`
	Refs   map[string]map[string]string `json:"refs,omitempty"`
}

// CompileMatrix builds the visibility matrix for all types in the schema.
func CompileMatrix(s *schema.Schema) Matrix {
	m := Matrix{}
	for _, t := range s.Types {
		for _, f := range t.Fields {
			if f.Access != nil {
				if m.Fields == nil {
					m.Fields = map[string]map[string]*Guard{}
				}
				if m.Fields[t.Name] == nil {
					m.Fields[t.Name] = map[string]*Guard{}
				}
				m.Fields[t.Name][f.Name] = CompileGuard(f.Access)
			}
			if s.Type(f.Type) != nil {
				if m.Refs == nil {
					m.Refs = map[string]map[string]string{}
				}
				if m.Refs[t.Name] == nil {
					m.Refs[t.Name] = map[string]string{}
				}
				m.Refs[t.Name][f.Name] = f.Type
			}
		}
	}
	return m
}

// FieldRule is the resolved per-field outcome inside a Projection.
type FieldRule struct {
	Decision   Decision
	OwnerField string
}

// Projection is the caller-specific view of a return type: which guarded
// fields to drop and which to keep only on owned rows, for the root type and
// every type reachable from it through nested fields. An empty projection
// passes payloads through untouched.
type Projection struct {
	root  string
	rules map[string]map[string]FieldRule
	refs  map[string]map[string]string
}

// Project resolves the matrix against a caller. Rules for every guarded type
// are resolved up front so nested payloads redact without further guard
// evaluation. The result is cheap to apply per row and safe for concurrent
// use.
func (m Matrix) Project(typeName string, caller Caller) Projection {
	if len(m.Fields) == 0 {
		return Projection{}
	}
	rules := make(map[string]map[string]FieldRule, len(m.Fields))
	for name, guards := range m.Fields {
		resolved := make(map[string]FieldRule, len(guards))
		for field, guard := range guards {
			decision, ownerField := guard.Resolve(caller)
			resolved[field] = FieldRule{Decision: decision, OwnerField: ownerField}
		}
		rules[name] = resolved
	}
	return Projection{root: typeName, rules: rules, refs: m.Refs}
}

// Empty reports whether the projection restricts nothing.
func (p Projection) Empty() bool {
	return len(p.rules) == 0
}

// Redact removes fields the caller may not see from a decoded payload
// object, in place, descending into nested objects and lists of objects.
// Ownership for VisibleOwn fields is string equality between the enclosing
// object's owner field and the caller's subject.
func (p Projection) Redact(payload map[string]any, subject string) {
	if len(p.rules) == 0 || payload == nil {
		return
	}
	p.redactType(p.root, payload, subject)
}

func (p Projection) redactType(typeName string, payload map[string]any, subject string) {
	for field, rule := range p.rules[typeName] {
		switch rule.Decision {
		case Visible:
		case VisibleOwn:
			if !ownedBy(payload, rule.OwnerField, subject) {
				delete(payload, field)
			}
		default:
			delete(payload, field)
		}
	}
	for field, nested := range p.refs[typeName] {
		switch child := payload[field].(type) {
		case map[string]any:
			p.redactType(nested, child, subject)
		case []any:
			for _, item := range child {
				if obj, ok := item.(map[string]any); ok {
					p.redactType(nested, obj, subject)
				}
			}
		}
	}
}

func ownedBy(payload map[string]any, ownerField, subject string) bool {
	if subject == "" || ownerField == "" {
		return false
	}
	owner, ok := payload[ownerField]
	if !ok {
		return false
	}
	return stringValue(owner) == subject
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// Allowed reports whether the caller may invoke an operation guarded by g.
// Ownership-scoped tokens grant invocation; row visibility is then enforced
// by field redaction.
func Allowed(g *Guard, caller Caller) bool {
	decision, _ := g.Resolve(caller)
	return decision != Hidden
}
