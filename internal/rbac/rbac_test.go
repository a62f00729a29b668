package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewql/internal/schema"
)

func ssnGuard() *Guard {
	return CompileGuard(&schema.AccessRule{Tokens: map[string]schema.AccessEntry{
		"pii:read":  {Kind: schema.AccessAllow},
		"self:read": {Kind: schema.AccessAllowOwn, OwnerField: "id"},
	}})
}

func TestGuardResolve(t *testing.T) {
	g := ssnGuard()

	decision, _ := g.Resolve(Caller{Capabilities: []string{"pii:read"}})
	assert.Equal(t, Visible, decision)

	decision, ownerField := g.Resolve(Caller{Capabilities: []string{"self:read"}})
	assert.Equal(t, VisibleOwn, decision)
	assert.Equal(t, "id", ownerField)

	decision, _ = g.Resolve(Caller{Capabilities: []string{"other"}})
	assert.Equal(t, Hidden, decision)

	decision, _ = g.Resolve(Caller{})
	assert.Equal(t, Hidden, decision)
}

func TestGuardDenyWins(t *testing.T) {
	g := CompileGuard(&schema.AccessRule{Tokens: map[string]schema.AccessEntry{
		"pii:read":   {Kind: schema.AccessAllow},
		"restricted": {Kind: schema.AccessDeny},
	}})

	decision, _ := g.Resolve(Caller{Capabilities: []string{"pii:read", "restricted"}})
	assert.Equal(t, Hidden, decision)
}

func TestNilGuardIsPublic(t *testing.T) {
	var g *Guard
	decision, _ := g.Resolve(Caller{})
	assert.Equal(t, Visible, decision)
	assert.True(t, Allowed(nil, Caller{}))
}

func testMatrix() Matrix {
	return Matrix{Fields: map[string]map[string]*Guard{
		"User": {"ssn": ssnGuard()},
	}}
}

func TestProjectRedactsGuardedField(t *testing.T) {
	m := testMatrix()

	proj := m.Project("User", Caller{Capabilities: []string{"support"}})
	require.False(t, proj.Empty())

	payload := map[string]any{"id": "u1", "email": "a@example.com", "ssn": "123-45-6789"}
	proj.Redact(payload, "")
	assert.NotContains(t, payload, "ssn")
	assert.Contains(t, payload, "email")
}

func TestProjectAllowsPrivilegedCaller(t *testing.T) {
	m := testMatrix()

	proj := m.Project("User", Caller{Capabilities: []string{"pii:read"}})
	payload := map[string]any{"id": "u1", "ssn": "123-45-6789"}
	proj.Redact(payload, "")
	assert.Contains(t, payload, "ssn")
}

func TestProjectOwnership(t *testing.T) {
	m := testMatrix()
	caller := Caller{Subject: "u1", Capabilities: []string{"self:read"}}
	proj := m.Project("User", caller)

	own := map[string]any{"id": "u1", "ssn": "123-45-6789"}
	proj.Redact(own, caller.Subject)
	assert.Contains(t, own, "ssn")

	other := map[string]any{"id": "u2", "ssn": "987-65-4321"}
	proj.Redact(other, caller.Subject)
	assert.NotContains(t, other, "ssn")
}

func TestProjectUnguardedTypeLeavesPayloadAlone(t *testing.T) {
	proj := testMatrix().Project("Order", Caller{})

	payload := map[string]any{"id": "o1"}
	proj.Redact(payload, "")
	assert.Contains(t, payload, "id")
}

func TestProjectEmptyMatrix(t *testing.T) {
	proj := Matrix{}.Project("User", Caller{})
	assert.True(t, proj.Empty())
}

func nestedMatrix() Matrix {
	return Matrix{
		Fields: map[string]map[string]*Guard{
			"User": {"ssn": ssnGuard()},
		},
		Refs: map[string]map[string]string{
			"Order": {"customer": "User", "participants": "User"},
		},
	}
}

func TestProjectRedactsNestedObject(t *testing.T) {
	proj := nestedMatrix().Project("Order", Caller{})

	payload := map[string]any{
		"id":       "o1",
		"customer": map[string]any{"id": "u1", "ssn": "123-45-6789"},
	}
	proj.Redact(payload, "")

	customer := payload["customer"].(map[string]any)
	assert.NotContains(t, customer, "ssn")
	assert.Contains(t, customer, "id")
}

func TestProjectRedactsNestedList(t *testing.T) {
	proj := nestedMatrix().Project("Order", Caller{})

	payload := map[string]any{
		"id": "o1",
		"participants": []any{
			map[string]any{"id": "u1", "ssn": "123-45-6789"},
			map[string]any{"id": "u2", "ssn": "987-65-4321"},
		},
	}
	proj.Redact(payload, "")

	for _, item := range payload["participants"].([]any) {
		assert.NotContains(t, item.(map[string]any), "ssn")
	}
}

func TestProjectNestedOwnership(t *testing.T) {
	caller := Caller{Subject: "u1", Capabilities: []string{"self:read"}}
	proj := nestedMatrix().Project("Order", caller)

	payload := map[string]any{
		"customer": map[string]any{"id": "u1", "ssn": "123-45-6789"},
		"participants": []any{
			map[string]any{"id": "u2", "ssn": "987-65-4321"},
		},
	}
	proj.Redact(payload, caller.Subject)

	assert.Contains(t, payload["customer"].(map[string]any), "ssn")
	other := payload["participants"].([]any)[0].(map[string]any)
	assert.NotContains(t, other, "ssn")
}

func TestCompileMatrixFromSchema(t *testing.T) {
	s := &schema.Schema{Types: []schema.TypeDefinition{{
		Name:      "User",
		SQLSource: "v_user",
		Fields: []schema.FieldDefinition{
			{Name: "id", Type: "ID"},
			{Name: "ssn", Type: "String", Access: &schema.AccessRule{Tokens: map[string]schema.AccessEntry{
				"pii:read": {Kind: schema.AccessAllow},
			}}},
		},
	}}}

	m := CompileMatrix(s)
	require.Contains(t, m.Fields, "User")
	assert.Contains(t, m.Fields["User"], "ssn")
	assert.NotContains(t, m.Fields["User"], "id")
}

func TestCompileMatrixRecordsTypeRefs(t *testing.T) {
	s := &schema.Schema{Types: []schema.TypeDefinition{
		{
			Name:      "User",
			SQLSource: "v_user",
			Fields: []schema.FieldDefinition{
				{Name: "id", Type: "ID"},
				{Name: "ssn", Type: "String", Access: &schema.AccessRule{Tokens: map[string]schema.AccessEntry{
					"pii:read": {Kind: schema.AccessAllow},
				}}},
			},
		},
		{
			Name:      "Order",
			SQLSource: "v_order",
			Fields: []schema.FieldDefinition{
				{Name: "id", Type: "ID"},
				{Name: "customer", Type: "User"},
			},
		},
	}}

	m := CompileMatrix(s)
	require.Contains(t, m.Refs, "Order")
	assert.Equal(t, "User", m.Refs["Order"]["customer"])
	assert.NotContains(t, m.Refs["Order"], "id")

	payload := map[string]any{"customer": map[string]any{"id": "u1", "ssn": "123"}}
	m.Project("Order", Caller{}).Redact(payload, "")
	assert.NotContains(t, payload["customer"].(map[string]any), "ssn")
}
