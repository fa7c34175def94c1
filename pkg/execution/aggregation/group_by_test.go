package aggregation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/execution/join"
	"payloadbuilder/pkg/execution/scan"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

func groupRows(t *testing.T, rows ...[]any) []tuple.Tuple {
	t.Helper()
	input, err := scan.NewValues(1, 0, []string{"a", "b"}, rows...)
	require.NoError(t, err)

	op, err := NewGroupBy(0, input, primitives.NoTupleOrdinal, expression.Col(0, "a"))
	require.NoError(t, err)

	groups, err := execution.Drain(execution.ForPlan(context.Background(), nil, op), op)
	require.NoError(t, err)
	return groups
}

func TestGroupBy_KeyColumnsAreSingleValued(t *testing.T) {
	groups := groupRows(t, []any{1, 10}, []any{1, 20}, []any{2, 5})
	require.Len(t, groups, 2)

	a := expression.Col(0, "a")
	b := expression.Col(0, "b")
	ctx := expression.StaticContext{}

	v, err := a.Eval(ctx, groups[0])
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = a.Eval(ctx, groups[1])
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = b.Eval(ctx, groups[0])
	require.NoError(t, err)
	seq, ok := v.(tuple.ValueSequence)
	require.True(t, ok, "aggregated column is streamed")
	assert.Equal(t, []any{10, 20}, seq.Values())

	sum, err := expression.Sum(b).Eval(ctx, groups[0])
	require.NoError(t, err)
	assert.Equal(t, int64(30), sum)

	count, err := expression.Count(b).Eval(ctx, groups[1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGroupBy_FirstSeenOrder(t *testing.T) {
	groups := groupRows(t, []any{3, 1}, []any{1, 2}, []any{3, 3}, []any{2, 4}, []any{1, 5})
	require.Len(t, groups, 3)

	var keys []any
	for _, g := range groups {
		keys = append(keys, g.Value(0))
	}
	assert.Equal(t, []any{3, 1, 2}, keys)
	assert.Equal(t, 2, groups[0].(*tuple.CollectionTuple).Len())
}

func TestGroupBy_KeyEquality(t *testing.T) {
	groups := groupRows(t, []any{1, 1}, []any{"1", 2}, []any{1.0, 3}, []any{nil, 4}, []any{nil, 5})
	require.Len(t, groups, 2)
	assert.Equal(t, 3, groups[0].(*tuple.CollectionTuple).Len())
	assert.Equal(t, 2, groups[1].(*tuple.CollectionTuple).Len(), "nulls group together")
}

func TestGroupBy_ComputedKeyIsStreamed(t *testing.T) {
	input, err := scan.NewValues(1, 0, []string{"a", "b"}, []any{1, 10}, []any{1, 20})
	require.NoError(t, err)

	key := expression.Compare(primitives.GreaterThan, expression.Col(0, "a"), expression.Lit(0))
	op, err := NewGroupBy(0, input, 7, key)
	require.NoError(t, err)
	assert.Equal(t, "by "+key.String(), op.Describe())

	groups, err := execution.Drain(execution.ForPlan(context.Background(), nil, op), op)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	group := groups[0].(*tuple.CollectionTuple)
	assert.Equal(t, primitives.TupleOrdinal(7), group.TupleOrdinal())
	assert.True(t, group.IsStreamed(0))
}

func TestGroupBy_JoinOutput(t *testing.T) {
	customers := scan.NewTable("customers", 0, "id").MustInsert(1).MustInsert(2)
	orders := scan.NewTable("orders", 1, "customer_id", "amount").
		MustInsert(1, 10).
		MustInsert(1, 20).
		MustInsert(2, 5)
	joined, err := join.NewHashJoin(1, join.Spec{
		Outer:     scan.NewTableScan(2, customers),
		Inner:     scan.NewTableScan(3, orders),
		Predicate: expression.Eq(expression.Col(0, "id"), expression.Col(1, "customer_id")),
	}, expression.NewOrdinalValuesFactory(expression.Col(0, "id")),
		expression.NewOrdinalValuesFactory(expression.Col(1, "customer_id")))
	require.NoError(t, err)

	op, err := NewGroupBy(0, joined, primitives.NoTupleOrdinal, expression.Col(0, "id"))
	require.NoError(t, err)
	groups, err := execution.Drain(execution.ForPlan(context.Background(), nil, op), op)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	ctx := expression.StaticContext{}
	id, err := expression.Col(0, "id").Eval(ctx, groups[0])
	require.NoError(t, err)
	assert.Equal(t, 1, id, "key column of a joined source is single valued")

	amounts, err := expression.Col(1, "amount").Eval(ctx, groups[0])
	require.NoError(t, err)
	seq, ok := amounts.(tuple.ValueSequence)
	require.True(t, ok, "aggregated column of a joined source is streamed")
	assert.Equal(t, []any{10, 20}, seq.Values())

	sum, err := expression.Sum(expression.Col(1, "amount")).Eval(ctx, groups[0])
	require.NoError(t, err)
	assert.Equal(t, int64(30), sum)

	sum, err = expression.Sum(expression.Col(1, "amount")).Eval(ctx, groups[1])
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)
}

func TestGroupBy_Validation(t *testing.T) {
	_, err := NewGroupBy(0, nil, 0, expression.Col(0, "a"))
	assert.Error(t, err)

	input, err := scan.NewValues(1, 0, []string{"a"})
	require.NoError(t, err)
	_, err = NewGroupBy(0, input, 0)
	assert.Error(t, err)

	op, err := NewGroupBy(0, input, 0, expression.Col(0, "a"))
	require.NoError(t, err)
	groups, err := execution.Drain(execution.ForPlan(context.Background(), nil, op), op)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
