package aggregate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewql/internal/compiler"
	"viewql/internal/dbexec"
	"viewql/internal/executor"
	"viewql/internal/planner"
)

func newEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(dbexec.NewStandardExecutor(db)), mock
}

func salesPlan() *planner.ExecutionPlan {
	return &planner.ExecutionPlan{
		Operation: "salesByRegion",
		Kind:      compiler.OpAggregate,
		SQL:       `SELECT region AS "region", sum("amount") AS "total" FROM "tf_sales" GROUP BY region`,
		Aggregate: &compiler.AggregateShape{
			Dimensions: []string{"region"},
			Measures:   []string{"total"},
		},
	}
}

func TestRunGroups(t *testing.T) {
	engine, mock := newEngine(t)

	plan := salesPlan()
	mock.ExpectQuery(plan.SQL).WillReturnRows(
		sqlmock.NewRows([]string{"region", "total"}).
			AddRow("emea", "1234.50").
			AddRow("apac", "0.01"))

	rows, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "emea", rows[0].Dimensions["region"])
	assert.Equal(t, json.Number("1234.50"), rows[0].Measures["total"])
	assert.Equal(t, json.Number("0.01"), rows[1].Measures["total"])
}

func TestRunPreservesPrecision(t *testing.T) {
	engine, mock := newEngine(t)

	plan := salesPlan()
	mock.ExpectQuery(plan.SQL).WillReturnRows(
		sqlmock.NewRows([]string{"region", "total"}).
			AddRow("emea", "123456789012345678.90"))

	rows, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)

	data, err := json.Marshal(rows[0].Measures)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 123456789012345678.90}`, string(data))
	assert.Contains(t, string(data), "123456789012345678.90")
}

func TestRunEmptyGroupSet(t *testing.T) {
	engine, mock := newEngine(t)

	plan := salesPlan()
	mock.ExpectQuery(plan.SQL).WillReturnRows(sqlmock.NewRows([]string{"region", "total"}))

	rows, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestRunNullMeasureOmitted(t *testing.T) {
	engine, mock := newEngine(t)

	plan := salesPlan()
	mock.ExpectQuery(plan.SQL).WillReturnRows(
		sqlmock.NewRows([]string{"region", "total"}).AddRow("emea", nil))

	rows, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotContains(t, rows[0].Measures, "total")
}

func TestRunColumnDrift(t *testing.T) {
	engine, mock := newEngine(t)

	plan := salesPlan()
	mock.ExpectQuery(plan.SQL).WillReturnRows(
		sqlmock.NewRows([]string{"region"}).AddRow("emea"))

	_, err := engine.Run(context.Background(), plan)
	var shape *executor.UnexpectedRowShapeError
	require.ErrorAs(t, err, &shape)
}

func TestRunFiltered(t *testing.T) {
	engine, mock := newEngine(t)

	plan := salesPlan()
	plan.SQL = `SELECT region AS "region", sum("amount") AS "total" FROM "tf_sales" WHERE region = $1 GROUP BY region`
	plan.Args = []any{"emea"}
	mock.ExpectQuery(plan.SQL).WithArgs("emea").WillReturnRows(
		sqlmock.NewRows([]string{"region", "total"}).AddRow("emea", "10"))

	rows, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
