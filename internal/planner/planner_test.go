package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewql/internal/compiler"
	"viewql/internal/cursor"
	"viewql/internal/rbac"
	"viewql/internal/schema"
)

func testArtifact(t *testing.T) *compiler.Artifact {
	t.Helper()
	model := &schema.Schema{
		Types: []schema.TypeDefinition{{
			Name:      "User",
			SQLSource: "v_user",
			Fields: []schema.FieldDefinition{
				{Name: "id", Type: "ID", FilterColumn: "id"},
				{Name: "email", Type: "String"},
				{Name: "age", Type: "Int"},
				{Name: "ssn", Type: "String", Access: &schema.AccessRule{Tokens: map[string]schema.AccessEntry{
					"pii:read": {Kind: schema.AccessAllow},
				}}},
			},
		}},
		Queries: []schema.QueryDefinition{
			{
				Name:       "userById",
				ReturnType: "User",
				Nullable:   true,
				Arguments:  []schema.ArgumentDefinition{{Name: "id", Type: "ID", Required: true}},
			},
			{
				Name:        "users",
				ReturnType:  "User",
				ReturnsList: true,
				Arguments: []schema.ArgumentDefinition{
					{Name: "age", Type: "Int", Op: "gte", Default: 18},
				},
				AutoParams: schema.AutoParams{Limit: true, Offset: true},
			},
			{
				Name:        "usersByEmail",
				ReturnType:  "User",
				ReturnsList: true,
				Arguments:   []schema.ArgumentDefinition{{Name: "email", Type: "String"}},
			},
			{
				Name:        "adminUsers",
				ReturnType:  "User",
				ReturnsList: true,
				Access: &schema.AccessRule{Tokens: map[string]schema.AccessEntry{
					"admin": {Kind: schema.AccessAllow},
				}},
			},
		},
		Mutations: []schema.MutationDefinition{{
			Name:       "createUser",
			ReturnType: "User",
			Function:   "fn_create_user",
			WriteKind:  schema.WriteCreate,
			Arguments: []schema.ArgumentDefinition{
				{Name: "email", Type: "String", Required: true},
			},
		}},
		Subscriptions: []schema.SubscriptionDefinition{{
			Name:       "userCreated",
			ReturnType: "User",
			Topic:      "user:created",
			Arguments:  []schema.ArgumentDefinition{{Name: "email", Type: "String"}},
		}},
	}
	art, err := compiler.Compile(model, compiler.Options{DefaultLimit: 10, MaxLimit: 50})
	require.NoError(t, err)
	return art
}

func TestPlanSingleQuery(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "userById", rbac.Caller{}, map[string]any{"id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, compiler.OpQuery, plan.Kind)
	assert.Equal(t, []any{"u1"}, plan.Args)
	assert.Equal(t, "data", plan.JSONColumn)
	assert.True(t, plan.Nullable)
	assert.False(t, plan.Paged)
}

func TestPlanDeterministic(t *testing.T) {
	art := testArtifact(t)

	a, err := Plan(art, "userById", rbac.Caller{}, map[string]any{"id": "u1"})
	require.NoError(t, err)
	b, err := Plan(art, "userById", rbac.Caller{}, map[string]any{"id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, a.SQL, b.SQL)
	assert.Equal(t, a.Args, b.Args)
}

func TestPlanUnknownOperation(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "nope", rbac.Caller{}, nil)
	var unknown *UnknownOperationError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Name)
}

func TestPlanMissingRequiredArgument(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "userById", rbac.Caller{}, map[string]any{})
	var missing *MissingArgumentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "id", missing.Argument)
}

func TestPlanUnknownArgument(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "userById", rbac.Caller{}, map[string]any{"id": "u1", "extra": 1})
	var unknown *UnknownArgumentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "extra", unknown.Argument)
}

func TestPlanArgumentTypeError(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "userById", rbac.Caller{}, map[string]any{"id": 42})
	var typeErr *ArgumentTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "ID", typeErr.Expected)
}

func TestPlanPagedDefaults(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "users", rbac.Caller{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, plan.Limit)
	// default age predicate, limit+1, offset
	assert.Equal(t, []any{int64(18), 11, 0}, plan.Args)
	assert.True(t, plan.Paged)
}

func TestPlanPagedExplicitLimit(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "users", rbac.Caller{}, map[string]any{"limit": float64(25), "offset": float64(5)})
	require.NoError(t, err)
	assert.Equal(t, 25, plan.Limit)
	assert.Equal(t, []any{int64(18), 26, 5}, plan.Args)
}

func TestPlanOmittedOptionalArgumentDisablesFilter(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "usersByEmail", rbac.Caller{}, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "IS NULL OR")
	// both placeholders of the guarded predicate carry NULL, so the
	// predicate collapses to true instead of matching nothing
	assert.Equal(t, []any{nil, nil}, plan.Args)
}

func TestPlanProvidedOptionalArgumentBindsBothSlots(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "usersByEmail", rbac.Caller{}, map[string]any{"email": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a@example.com", "a@example.com"}, plan.Args)
}

func TestPlanCursorResumesOffset(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "users", rbac.Caller{}, map[string]any{"cursor": cursor.Encode("users", 30)})
	require.NoError(t, err)
	assert.Equal(t, 30, plan.Offset)
	assert.Equal(t, []any{int64(18), 11, 30}, plan.Args)
}

func TestPlanCursorOperationMismatch(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "users", rbac.Caller{}, map[string]any{"cursor": cursor.Encode("userById", 30)})
	var invalid *InvalidCursorError
	require.ErrorAs(t, err, &invalid)
}

func TestPlanCursorMalformed(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "users", rbac.Caller{}, map[string]any{"cursor": "not-a-cursor"})
	var invalid *InvalidCursorError
	require.ErrorAs(t, err, &invalid)
}

func TestPlanCursorConflictsWithOffset(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "users", rbac.Caller{}, map[string]any{
		"cursor": cursor.Encode("users", 30),
		"offset": 5,
	})
	var invalid *InvalidCursorError
	require.ErrorAs(t, err, &invalid)
}

func TestPlanCursorRejectedOnUnpagedQuery(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "userById", rbac.Caller{}, map[string]any{"id": "u1", "cursor": "x"})
	var unknown *UnknownArgumentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "cursor", unknown.Argument)
}

func TestPlanLimitClampedToMax(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "users", rbac.Caller{}, map[string]any{"limit": 500})
	require.NoError(t, err)
	assert.Equal(t, 50, plan.Limit)
}

func TestPlanRejectsBadPaging(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "users", rbac.Caller{}, map[string]any{"limit": 0})
	var typeErr *ArgumentTypeError
	require.ErrorAs(t, err, &typeErr)

	_, err = Plan(art, "users", rbac.Caller{}, map[string]any{"offset": -1})
	require.ErrorAs(t, err, &typeErr)
}

func TestPlanOperationGuard(t *testing.T) {
	art := testArtifact(t)

	_, err := Plan(art, "adminUsers", rbac.Caller{}, nil)
	var denied *AccessDeniedError
	require.ErrorAs(t, err, &denied)

	_, err = Plan(art, "adminUsers", rbac.Caller{Capabilities: []string{"admin"}}, nil)
	assert.NoError(t, err)
}

func TestPlanProjectionFollowsCaller(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "userById", rbac.Caller{}, map[string]any{"id": "u1"})
	require.NoError(t, err)
	payload := map[string]any{"id": "u1", "ssn": "123"}
	plan.Projection.Redact(payload, plan.Subject)
	assert.NotContains(t, payload, "ssn")

	plan, err = Plan(art, "userById", rbac.Caller{Capabilities: []string{"pii:read"}}, map[string]any{"id": "u1"})
	require.NoError(t, err)
	payload = map[string]any{"id": "u1", "ssn": "123"}
	plan.Projection.Redact(payload, plan.Subject)
	assert.Contains(t, payload, "ssn")
}

func TestPlanMutation(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "createUser", rbac.Caller{}, map[string]any{"email": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, compiler.OpMutation, plan.Kind)
	assert.Equal(t, "user:created", plan.Topic)
	assert.Equal(t, []any{"a@example.com"}, plan.Args)
}

func TestPlanSubscription(t *testing.T) {
	art := testArtifact(t)

	plan, err := Plan(art, "userCreated", rbac.Caller{}, map[string]any{"email": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, compiler.OpSubscription, plan.Kind)
	assert.Empty(t, plan.SQL)
	assert.Equal(t, map[string]any{"email": "a@example.com"}, plan.Filters)
}
