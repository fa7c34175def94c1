package execution

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

var testSchema = tuple.NewSchema("id")

func rows(ids ...int) []tuple.Tuple {
	out := make([]tuple.Tuple, len(ids))
	for i, id := range ids {
		out[i] = tuple.NewRow(0, testSchema, []any{id})
	}
	return out
}

type rowsOperator struct {
	id       primitives.NodeID
	rows     []tuple.Tuple
	children []Operator
	err      error
}

func (r *rowsOperator) NodeID() primitives.NodeID { return r.id }
func (r *rowsOperator) Kind() OperatorKind       { return KindValues }
func (r *rowsOperator) Children() []Operator     { return r.children }
func (r *rowsOperator) Describe() string         { return "test rows" }

func (r *rowsOperator) Open(*ExecutionContext) (TupleIterator, error) {
	if r.err != nil {
		return nil, r.err
	}
	return NewSliceIterator(r.rows), nil
}

func TestBaseIterator(t *testing.T) {
	source := rows(1, 2)
	reads, closes := 0, 0
	it := NewBaseIterator(func() (tuple.Tuple, error) {
		reads++
		if len(source) == 0 {
			return nil, nil
		}
		next := source[0]
		source = source[1:]
		return next, nil
	}, func() error {
		closes++
		return nil
	})

	ok, err := it.HasNext()
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = it.HasNext()
	assert.True(t, ok, "HasNext is idempotent")
	assert.Equal(t, 1, reads)

	all, err := Collect(it)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ok, err = it.HasNext()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, reads, "exhausted iterator does not read again")

	_, err = it.Next()
	assert.ErrorIs(t, err, ErrNoMoreTuples)

	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.Equal(t, 1, closes)

	_, err = it.HasNext()
	assert.Error(t, err)
}

func TestBaseIterator_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	it := NewBaseIterator(func() (tuple.Tuple, error) { return nil, boom }, nil)

	_, err := it.HasNext()
	assert.ErrorIs(t, err, boom)
	_, err = it.Next()
	assert.ErrorIs(t, err, boom)
}

func TestConcat(t *testing.T) {
	closed := 0
	onClose := func() error {
		closed++
		return nil
	}
	it := Concat(
		NewSliceIterator(rows(1)).OnClose(onClose),
		NewSliceIterator(nil).OnClose(onClose),
		NewSliceIterator(rows(2, 3)).OnClose(onClose),
	)

	all, err := Collect(it)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 3, all[2].Value(0))

	require.NoError(t, it.Close())
	assert.Equal(t, 3, closed)
}

func TestOpen_RecordsStatistics(t *testing.T) {
	op := &rowsOperator{id: 2, rows: rows(1, 2, 3)}
	ctx := ForPlan(context.Background(), nil, op)

	out, err := Drain(ctx, op)
	require.NoError(t, err)
	assert.Len(t, out, 3)

	_, err = Drain(ctx, op)
	require.NoError(t, err)

	snap := ctx.Statistics(2).Snapshot()
	assert.Equal(t, int64(2), snap.Executions)
	assert.Equal(t, int64(6), snap.Rows)

	failing := &rowsOperator{id: 0, err: errors.New("open failed")}
	_, err = Open(ctx, failing)
	assert.EqualError(t, err, "open failed")
	assert.Equal(t, int64(1), ctx.Statistics(0).Snapshot().Executions)
}

func TestWalkNodeCountExplain(t *testing.T) {
	leafA := &rowsOperator{id: 1}
	leafB := &rowsOperator{id: 4}
	root := &rowsOperator{id: 0, children: []Operator{leafA, leafB}}

	var visited []primitives.NodeID
	Walk(root, func(op Operator, depth int) bool {
		visited = append(visited, op.NodeID())
		return true
	})
	assert.Equal(t, []primitives.NodeID{0, 1, 4}, visited)
	assert.Equal(t, 5, NodeCount(root))

	out := Explain(root, nil)
	assert.Equal(t, "Values#0 [source] test rows\n  Values#1 [source] test rows\n  Values#4 [source] test rows\n", out)

	ctx := ForPlan(context.Background(), nil, root)
	assert.Contains(t, Explain(root, ctx), "executions=0 rows=0")
}

func TestOperatorKind_Exhaustive(t *testing.T) {
	for k := KindTableScan; k <= KindBatchParallel; k++ {
		assert.NotEqual(t, "UNKNOWN", k.String())
		assert.NotPanics(t, func() { _ = k.Family() })
	}
	assert.True(t, KindBatchMergeJoin.IsJoin())
	assert.False(t, KindGroupBy.IsJoin())
	assert.Panics(t, func() { _ = OperatorKind(99).Family() })
}

func TestExecutionContext_OuterValuesAndVariables(t *testing.T) {
	ctx := NewExecutionContext(context.Background(), nil, 1)
	assert.NotEmpty(t, ctx.QueryID())
	assert.Equal(t, DefaultBatchSize, ctx.Session().DefaultBatchSize)

	values := NewOuterValues([]ordinal.Values{ordinal.New(1), ordinal.New(2)})
	ctx.SetOuterValues(values)
	require.NotNil(t, ctx.OuterValues())
	assert.Len(t, DrainOuterValues(ctx.OuterValues()), 2)
	assert.Equal(t, 0, values.Remaining())
	ctx.ClearOuterValues()
	assert.Nil(t, ctx.OuterValues())

	outer := rows(9)[0]
	prev := ctx.SetOuterTuple(outer)
	assert.Nil(t, prev)
	assert.Same(t, outer, ctx.OuterTuple())

	ctx.SetVariable("x", 1)
	assert.Equal(t, 1, ctx.Variable("x"))
}

func TestExecutionContext_SlotsGrow(t *testing.T) {
	ctx := NewExecutionContext(context.Background(), nil, 1)
	slot := ctx.Slot(5)
	slot.SetState("state")
	assert.Equal(t, "state", ctx.Slot(5).State())
	assert.Panics(t, func() { ctx.Slot(-1) })
}

func TestExecutionContext_CloneAndMerge(t *testing.T) {
	parent := NewExecutionContext(context.Background(), nil, 2)
	parent.SetVariable("v", "x")
	parent.Slot(1).SetState("parent")

	var wg sync.WaitGroup
	clones := make([]*ExecutionContext, 4)
	for i := range clones {
		clones[i] = parent.Clone()
		wg.Add(1)
		go func(c *ExecutionContext) {
			defer wg.Done()
			c.Statistics(1).AddBatch()
			c.Slot(1).SetState("clone")
		}(clones[i])
	}
	wg.Wait()

	for _, c := range clones {
		assert.Equal(t, parent.QueryID(), c.QueryID())
		assert.Equal(t, "x", c.Variable("v"))
		parent.MergeStatistics(c)
	}

	assert.Equal(t, "parent", parent.Slot(1).State(), "local state is not shared")
	assert.Equal(t, int64(4), parent.Statistics(1).Snapshot().Batches)
	assert.Same(t, parent.Slot(1).Shared(), clones[0].Slot(1).Shared())
}

func TestSharedState_AtMostOnce(t *testing.T) {
	parent := NewExecutionContext(context.Background(), nil, 1)
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(c *ExecutionContext) {
			defer wg.Done()
			v, err := c.Slot(0).Shared().LoadOrInit(func() (any, error) {
				calls.Inc()
				return "materialized", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "materialized", v)
		}(parent.Clone())
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	s := &SharedState{}
	_, err := s.LoadOrInit(func() (any, error) { return nil, errors.New("fail") })
	assert.Error(t, err)
	v, err := s.LoadOrInit(func() (any, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	s.Reset()
	v, _ = s.LoadOrInit(func() (any, error) { return 2, nil })
	assert.Equal(t, 2, v)
}
