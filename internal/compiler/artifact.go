package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"viewql/internal/rbac"
)

// ArtifactVersion is the artifact format produced by this compiler. Loading
// rejects artifacts carrying any other version.
const ArtifactVersion = 1

// OpKind classifies a compiled operation.
type OpKind string

const (
	OpQuery        OpKind = "query"
	OpMutation     OpKind = "mutation"
	OpSubscription OpKind = "subscription"
	OpAggregate    OpKind = "aggregate"
)

// BindingKind classifies what a SQL placeholder is bound from.
type BindingKind string

const (
	// BindValue takes the placeholder value from a caller argument.
	BindValue BindingKind = "value"
	// BindLimit takes the placeholder value from the resolved page limit,
	// with one extra row fetched to detect a following page.
	BindLimit BindingKind = "limit"
	// BindOffset takes the placeholder value from the resolved page offset.
	BindOffset BindingKind = "offset"
)

// Binding describes one SQL placeholder of a compiled operation, in
// placeholder order. The planner fills placeholders strictly from this list.
type Binding struct {
	Argument string      `json:"argument,omitempty"`
	Kind     BindingKind `json:"kind"`
	Type     string      `json:"type,omitempty"`
	Required bool        `json:"required,omitempty"`
	Default  any         `json:"default,omitempty"`
}

// AggregateShape records the output column roles of an aggregate operation,
// in SELECT order: dimension columns first, then measure aliases.
type AggregateShape struct {
	Dimensions []string `json:"dimensions,omitempty"`
	Measures   []string `json:"measures"`
}

// Operation is one executable unit of a compiled artifact. SQL is a complete
// parameterized statement with $n placeholders; subscriptions carry no SQL.
type Operation struct {
	Name        string  `json:"name"`
	Kind        OpKind  `json:"kind"`
	ReturnType  string  `json:"return_type,omitempty"`
	ReturnsList bool    `json:"returns_list,omitempty"`
	Nullable    bool    `json:"nullable,omitempty"`
	SQL         string  `json:"sql,omitempty"`
	Bindings    []Binding `json:"bindings,omitempty"`

	// Paged marks list queries carrying limit placeholders compiled for
	// over-fetch pagination.
	Paged        bool `json:"paged,omitempty"`
	DefaultLimit int  `json:"default_limit,omitempty"`
	MaxLimit     int  `json:"max_limit,omitempty"`

	// Topic is published to after a successful mutation, or listened on by
	// a subscription.
	Topic     string `json:"topic,omitempty"`
	WriteKind string `json:"write_kind,omitempty"`

	// FilterArgs names the subscription arguments matched exactly against
	// event payload fields.
	FilterArgs []string `json:"filter_args,omitempty"`

	Guard     *rbac.Guard     `json:"guard,omitempty"`
	Aggregate *AggregateShape `json:"aggregate,omitempty"`
}

// TypeShape is the per-type information the runtime needs: the payload
// column and field types for redaction and coercion.
type TypeShape struct {
	Name       string            `json:"name"`
	JSONColumn string            `json:"json_column"`
	FieldTypes map[string]string `json:"field_types,omitempty"`
}

// Artifact is the immutable output of compilation. It is safe for
// concurrent use and serializes deterministically.
type Artifact struct {
	Version    int                   `json:"artifact_version"`
	SchemaName string                `json:"schema_name,omitempty"`
	SchemaHash string                `json:"schema_hash"`
	CompiledAt time.Time             `json:"compiled_at"`
	Types      map[string]TypeShape  `json:"types"`
	Operations map[string]*Operation `json:"operations"`
	Visibility rbac.Matrix           `json:"visibility"`
}

// Operation returns the named operation, or nil.
func (a *Artifact) Operation(name string) *Operation {
	return a.Operations[name]
}

// Encode serializes the artifact as indented JSON.
func (a *Artifact) Encode() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// IncompatibleArtifactError reports an artifact produced by a different
// compiler version.
type IncompatibleArtifactError struct {
	Found    int
	Expected int
}

func (e *IncompatibleArtifactError) Error() string {
	return fmt.Sprintf("artifact version %d not supported (compiler speaks version %d)", e.Found, e.Expected)
}

// Decode parses a serialized artifact, rejecting unknown versions and
// unknown fields.
func Decode(data []byte) (*Artifact, error) {
	var probe struct {
		Version int `json:"artifact_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}
	if probe.Version != ArtifactVersion {
		return nil, &IncompatibleArtifactError{Found: probe.Version, Expected: ArtifactVersion}
	}
	var a Artifact
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}
	return &a, nil
}

// LoadArtifact reads and decodes an artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact file: %w", err)
	}
	return Decode(data)
}
