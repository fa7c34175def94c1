package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payloadbuilder/pkg/catalog"
	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

func ordersTable() *Table {
	return NewTable("orders", 1, "id", "customer_id", "amount").
		MustInsert(1, 2, 10.0).
		MustInsert(2, 1, 5.0).
		MustInsert(3, 2, 7.5).
		MustInsert(4, 3, 1.0)
}

func ids(t *testing.T, rows []tuple.Tuple) []any {
	t.Helper()
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r.Value(0)
	}
	return out
}

func TestTable_InsertAndLookup(t *testing.T) {
	table := ordersTable()
	assert.Error(t, table.Insert(1, 2))

	rows, err := table.Lookup([]string{"customer_id"}, ordinal.New("2"))
	require.NoError(t, err)
	assert.Equal(t, []any{1, 3}, ids(t, rows))

	_, err = table.Lookup([]string{"missing"}, ordinal.New(1))
	assert.Error(t, err)

	table.MustInsert(5, 2, 3.0)
	rows, err = table.Lookup([]string{"customer_id"}, ordinal.New(2))
	require.NoError(t, err)
	assert.Len(t, rows, 3, "index is rebuilt after insert")
	assert.Equal(t, int64(3), table.Lookups())
}

func TestTableScan(t *testing.T) {
	table := ordersTable()
	op := NewTableScan(0, table)
	ctx := execution.ForPlan(context.Background(), nil, op)

	rows, err := execution.Drain(ctx, op)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, int64(1), table.Scans())
	assert.Equal(t, "orders #1", op.Describe())
}

func TestIndexScan_ConsumesOuterValues(t *testing.T) {
	table := ordersTable()
	op, err := NewIndexScan(0, table, catalog.Index{Table: "orders", Columns: []string{"customer_id"}})
	require.NoError(t, err)

	ctx := execution.ForPlan(context.Background(), nil, op)
	values := execution.NewOuterValues([]ordinal.Values{ordinal.New(3), ordinal.New(9), ordinal.New(2)})
	ctx.SetOuterValues(values)

	rows, err := execution.Drain(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, []any{4, 1, 3}, ids(t, rows))
	assert.Equal(t, 0, values.Remaining())
}

func TestIndexScan_Ordered(t *testing.T) {
	table := ordersTable()
	op, err := NewIndexScan(0, table, catalog.Index{Table: "orders", Columns: []string{"customer_id"}})
	require.NoError(t, err)
	ordered := op.Ordered()

	ctx := execution.ForPlan(context.Background(), nil, ordered)
	ctx.SetOuterValues(execution.NewOuterValues([]ordinal.Values{ordinal.New(3), ordinal.New(1), ordinal.New(2), ordinal.New(1)}))

	rows, err := execution.Drain(ctx, ordered)
	require.NoError(t, err)
	assert.Equal(t, []any{2, 1, 3, 4}, ids(t, rows))
	assert.Equal(t, "orders(customer_id) ordered", ordered.Describe())
	assert.Equal(t, "orders(customer_id)", op.Describe(), "Ordered returns a copy")
}

func TestIndexScan_Errors(t *testing.T) {
	table := ordersTable()

	_, err := NewIndexScan(0, table, catalog.Index{Table: "customers", Columns: []string{"id"}})
	assert.Error(t, err)
	_, err = NewIndexScan(0, table, catalog.Index{Table: "orders", Columns: []string{"nope"}})
	assert.Error(t, err)

	op, err := NewIndexScan(0, table, catalog.Index{Table: "orders", Columns: []string{"customer_id"}})
	require.NoError(t, err)

	ctx := execution.ForPlan(context.Background(), nil, op)
	_, err = execution.Open(ctx, op)
	assert.True(t, dberror.HasCode(err, dberror.CodeMissingOuterValues))

	ctx.SetOuterValues(execution.NewOuterValues([]ordinal.Values{ordinal.New(1, 2)}))
	_, err = execution.Drain(ctx, op)
	assert.True(t, dberror.HasCode(err, dberror.CodeUnexpectedTuple))
}

func TestFilter(t *testing.T) {
	table := ordersTable()
	pred := expression.Compare(primitives.GreaterThan, expression.Col(1, "amount"), expression.Lit(5))
	op, err := NewFilter(1, pred, NewTableScan(0, table))
	require.NoError(t, err)

	ctx := execution.ForPlan(context.Background(), nil, op)
	rows, err := execution.Drain(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 3}, ids(t, rows))
	assert.Equal(t, int64(4), ctx.Statistics(0).Snapshot().Rows)
	assert.Equal(t, int64(2), ctx.Statistics(1).Snapshot().Rows)

	_, err = NewFilter(1, nil, NewTableScan(0, table))
	assert.Error(t, err)
}

func TestValuesAndBatchSource(t *testing.T) {
	values, err := NewValues(0, 0, []string{"a", "b"}, []any{1, "x"}, []any{2, "y"})
	require.NoError(t, err)
	ctx := execution.ForPlan(context.Background(), nil, values)
	rows, err := execution.Drain(ctx, values)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, ids(t, rows))

	_, err = NewValues(0, 0, []string{"a"}, []any{1, 2})
	assert.Error(t, err)

	source := NewBatchSource(1)
	_, err = execution.Open(ctx, source)
	assert.Error(t, err)

	source.SetBatch(ctx, rows[:1])
	batch, err := execution.Drain(ctx, source)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}
