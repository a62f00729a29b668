package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userSchemaJSON = `{
  "name": "crm",
  "types": [
    {
      "name": "User",
      "sql_source": "v_user",
      "fields": [
        {"name": "id", "type": "ID", "filter_column": "id"},
        {"name": "email", "type": "String"},
        {"name": "ssn", "type": "String", "access": {"tokens": {
          "pii:read": {"kind": "allow"},
          "self:read": {"kind": "allow_own", "owner_field": "id"}
        }}}
      ]
    }
  ],
  "queries": [
    {
      "name": "userById",
      "return_type": "User",
      "nullable": true,
      "arguments": [{"name": "id", "type": "ID", "required": true}]
    },
    {
      "name": "users",
      "return_type": "User",
      "returns_list": true,
      "auto_params": {"limit": true, "offset": true}
    }
  ],
  "mutations": [
    {
      "name": "createUser",
      "return_type": "User",
      "function": "fn_create_user",
      "write_kind": "create",
      "arguments": [
        {"name": "email", "type": "String", "required": true},
        {"name": "name", "type": "String"}
      ]
    }
  ],
  "subscriptions": [
    {
      "name": "userCreated",
      "return_type": "User",
      "topic": "user:created"
    }
  ],
  "fact_tables": [
    {
      "name": "sales",
      "table": "tf_sales",
      "dimensions": [{"name": "region"}, {"name": "month", "expression": "date_trunc('month', sold_at)"}],
      "measures": [{"name": "amount", "aggregations": ["sum", "avg"]}]
    }
  ],
  "aggregate_queries": [
    {
      "name": "salesByRegion",
      "fact_table": "sales",
      "dimensions": ["region"],
      "measures": [{"measure": "amount", "aggregation": "sum", "alias": "total"}]
    }
  ]
}`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(userSchemaJSON))
	require.NoError(t, err)

	user := s.Type("User")
	require.NotNil(t, user)
	assert.Equal(t, "v_user", user.SQLSource)
	assert.Equal(t, "data", user.PayloadColumn())

	ssn := user.Field("ssn")
	require.NotNil(t, ssn)
	require.NotNil(t, ssn.Access)
	assert.Equal(t, AccessAllow, ssn.Access.Tokens["pii:read"].Kind)
	assert.Equal(t, "id", ssn.Access.Tokens["self:read"].OwnerField)

	require.Len(t, s.Queries, 2)
	assert.True(t, s.Queries[1].AutoParams.Limit)

	ft := s.FactTable("sales")
	require.NotNil(t, ft)
	assert.Equal(t, "date_trunc('month', sold_at)", ft.Dimension("month").SQLExpression())
	assert.True(t, ft.Measure("amount").Allows("sum"))
	assert.False(t, ft.Measure("amount").Allows("count"))
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"types": [], "bogus": 1}`))
	assert.Error(t, err)
}

func TestMeasureSelectionAlias(t *testing.T) {
	sel := MeasureSelection{Measure: "amount", Aggregation: "sum"}
	assert.Equal(t, "sum_amount", sel.OutputAlias())
	sel.Alias = "total"
	assert.Equal(t, "total", sel.OutputAlias())
}
