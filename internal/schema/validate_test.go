package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Parse([]byte(userSchemaJSON))
	require.NoError(t, err)
	return s
}

func errorPaths(errs []ValidationError) []string {
	paths := make([]string, len(errs))
	for i, e := range errs {
		paths[i] = e.Path
	}
	return paths
}

func TestValidateCleanSchema(t *testing.T) {
	errs, warns := Validate(validSchema(t), ValidateOptions{})
	assert.Empty(t, errs)
	assert.Empty(t, warns)
}

func TestValidateDuplicateNames(t *testing.T) {
	s := validSchema(t)
	s.Queries = append(s.Queries, QueryDefinition{Name: "userById", ReturnType: "User"})

	errs, _ := Validate(s, ValidateOptions{})
	assert.Contains(t, errorPaths(errs), "query.userById")
}

func TestValidateUnknownReturnType(t *testing.T) {
	s := validSchema(t)
	s.Queries[0].ReturnType = "Ghost"

	errs, _ := Validate(s, ValidateOptions{})
	require.Len(t, errs, 1)
	assert.Equal(t, "query.userById", errs[0].Path)
	assert.Contains(t, errs[0].Message, "Ghost")
}

func TestValidateUnknownFieldType(t *testing.T) {
	s := validSchema(t)
	s.Types[0].Fields[1].Type = "Strnig"

	errs, _ := Validate(s, ValidateOptions{})
	require.Len(t, errs, 1)
	assert.Equal(t, "type.User.field.email", errs[0].Path)
	assert.Contains(t, errs[0].Message, "Strnig")
}

func TestValidateUnknownArgumentType(t *testing.T) {
	s := validSchema(t)
	s.Queries[0].Arguments[0].Type = "Strnig"

	errs, _ := Validate(s, ValidateOptions{})
	require.Len(t, errs, 1)
	assert.Equal(t, "query.userById", errs[0].Path)
	assert.Contains(t, errs[0].Message, "Strnig")
}

func TestValidateFieldMayReferenceDeclaredType(t *testing.T) {
	s := validSchema(t)
	s.Types = append(s.Types, TypeDefinition{
		Name:      "Profile",
		SQLSource: "v_profile",
		Fields: []FieldDefinition{
			{Name: "id", Type: "ID"},
			{Name: "user", Type: "User"},
		},
	})

	errs, _ := Validate(s, ValidateOptions{})
	assert.Empty(t, errs)
}

func TestValidateVoidMutationReturnType(t *testing.T) {
	s := validSchema(t)
	s.Mutations = append(s.Mutations, MutationDefinition{
		Name:       "purgeUsers",
		ReturnType: VoidType,
		Function:   "fn_purge_users",
	})

	errs, _ := Validate(s, ValidateOptions{})
	assert.Empty(t, errs)
}

func TestValidateInvalidSQLBindings(t *testing.T) {
	s := validSchema(t)
	s.Types[0].SQLSource = "v_user; DROP TABLE users"
	s.Mutations[0].Function = ""
	s.FactTables[0].Table = "tf sales"

	errs, _ := Validate(s, ValidateOptions{})
	paths := errorPaths(errs)
	assert.Contains(t, paths, "type.User")
	assert.Contains(t, paths, "mutation.createUser")
	assert.Contains(t, paths, "fact_table.sales")
}

func TestValidateDimensionMeasureCollision(t *testing.T) {
	s := validSchema(t)
	s.FactTables[0].Measures = append(s.FactTables[0].Measures, MeasureDefinition{
		Name:         "region",
		Aggregations: []string{"count"},
	})

	errs, _ := Validate(s, ValidateOptions{})
	assert.Contains(t, errorPaths(errs), "fact_table.sales.region")
}

func TestValidateDisallowedAggregation(t *testing.T) {
	s := validSchema(t)
	s.AggregateQueries[0].Measures[0].Aggregation = "max"

	errs, _ := Validate(s, ValidateOptions{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, `"max"`)
}

func TestValidateAllowOwnNeedsOwnerField(t *testing.T) {
	s := validSchema(t)
	rule := s.Types[0].Fields[2].Access
	entry := rule.Tokens["self:read"]
	entry.OwnerField = ""
	rule.Tokens["self:read"] = entry

	errs, _ := Validate(s, ValidateOptions{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "owner_field")
}

func TestValidateUnknownCapabilityWarns(t *testing.T) {
	s := validSchema(t)

	errs, warns := Validate(s, ValidateOptions{KnownCapabilities: []string{"pii:read"}})
	assert.Empty(t, errs)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "self:read")
}
