package parallel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"payloadbuilder/pkg/catalog"
	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/execution/join"
	"payloadbuilder/pkg/execution/scan"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

var ordersIndex = catalog.Index{Table: "orders", Columns: []string{"customer_id"}}

func customers(n int) *scan.Table {
	t := scan.NewTable("customers", 0, "id")
	for i := 1; i <= n; i++ {
		t.MustInsert(i)
	}
	return t
}

// orders holds two orders for every even customer.
func orders(n int) *scan.Table {
	t := scan.NewTable("orders", 1, "id", "customer_id")
	for i := 2; i <= n; i += 2 {
		t.MustInsert(i*10, i).MustInsert(i*10+1, i)
	}
	return t
}

func batchJoin(t *testing.T, id primitives.NodeID, outer execution.Operator, index *scan.IndexScan) execution.Operator {
	t.Helper()
	op, err := join.NewBatchHashJoin(id, join.Spec{
		Outer:          outer,
		Inner:          index,
		Predicate:      expression.Eq(expression.Col(0, "id"), expression.Col(1, "customer_id")),
		EmitEmptyOuter: true,
	}, join.BatchOptions{
		Index:     ordersIndex,
		OuterKeys: expression.NewOrdinalValuesFactory(expression.Col(0, "id")),
		InnerKeys: expression.NewOrdinalValuesFactory(expression.Col(1, "customer_id")),
	})
	require.NoError(t, err)
	return op
}

// parallelPlan is BatchParallel#0 over TableScan#1 with the body
// BatchHashJoin#2(BatchSource#3, IndexScan#4).
func parallelPlan(t *testing.T, outer, inner *scan.Table, opts Options) *BatchParallel {
	t.Helper()
	index, err := scan.NewIndexScan(4, inner, ordersIndex)
	require.NoError(t, err)
	source := scan.NewBatchSource(3)

	p, err := NewBatchParallel(0, scan.NewTableScan(1, outer), source, batchJoin(t, 2, source, index), opts)
	require.NoError(t, err)
	return p
}

func render(rows []tuple.Tuple) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = tuple.Format(r)
	}
	slices.Sort(out)
	return out
}

func TestBatchParallel_MatchesSequentialJoin(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for _, workers := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("workers %d", workers), func(t *testing.T) {
			index, err := scan.NewIndexScan(1, orders(20), ordersIndex)
			require.NoError(t, err)
			sequential := batchJoin(t, 0, scan.NewTableScan(2, customers(20)), index)
			want, err := execution.Drain(execution.ForPlan(context.Background(), nil, sequential), sequential)
			require.NoError(t, err)
			require.Len(t, want, 30)

			p := parallelPlan(t, customers(20), orders(20), Options{BatchSize: 3, Workers: workers, QueueSize: 2})
			ctx := execution.ForPlan(context.Background(), nil, p)
			got, err := execution.Drain(ctx, p)
			require.NoError(t, err)

			assert.Equal(t, render(want), render(got))
			assert.Equal(t, int64(7), ctx.Statistics(0).Snapshot().Batches)
			assert.Equal(t, int64(30), ctx.Statistics(0).Snapshot().Rows)
		})
	}
}

func TestBatchParallel_MergesWorkerStatistics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	inner := orders(10)
	p := parallelPlan(t, customers(10), inner, Options{BatchSize: 4, Workers: 2, QueueSize: 8})
	ctx := execution.ForPlan(context.Background(), nil, p)
	rows, err := execution.Drain(ctx, p)
	require.NoError(t, err)
	assert.Len(t, rows, 15)

	body := ctx.Statistics(2).Snapshot()
	assert.Equal(t, int64(3), body.Executions, "one body execution per batch")
	assert.Equal(t, int64(3), body.Batches)
	assert.Equal(t, int64(15), body.Rows)
	assert.Equal(t, int64(10), ctx.Statistics(3).Snapshot().Rows)
	assert.Equal(t, int64(10), inner.Lookups())
}

func TestBatchParallel_EmptyOuter(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := parallelPlan(t, customers(0), orders(4), Options{})
	rows, err := execution.Drain(execution.ForPlan(context.Background(), nil, p), p)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// failing is a body that opens its batch source and then fails or panics.
type failing struct {
	source *scan.BatchSource
	panics bool
}

func (f *failing) NodeID() primitives.NodeID      { return 2 }
func (f *failing) Kind() execution.OperatorKind   { return execution.KindFilter }
func (f *failing) Children() []execution.Operator { return []execution.Operator{f.source} }

func (f *failing) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	it, err := execution.Open(ctx, f.source)
	if err != nil {
		return nil, err
	}
	if f.panics {
		panic("body exploded")
	}
	return nil, errors.Join(errors.New("body failed"), it.Close())
}

func TestBatchParallel_WorkerFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for _, panics := range []bool{false, true} {
		t.Run(fmt.Sprintf("panics %t", panics), func(t *testing.T) {
			source := scan.NewBatchSource(3)
			p, err := NewBatchParallel(0, scan.NewTableScan(1, customers(10)), source,
				&failing{source: source, panics: panics}, Options{BatchSize: 2, Workers: 2, QueueSize: 1})
			require.NoError(t, err)

			_, err = execution.Drain(execution.ForPlan(context.Background(), nil, p), p)
			require.Error(t, err)
			assert.True(t, dberror.HasCode(err, dberror.CodeWorkerFailed), err.Error())
			assert.True(t, dberror.Is(err, dberror.CategoryResource))
		})
	}
}

// correlating publishes every outer row as the outer tuple of ctx while it
// is being read.
type correlating struct {
	scan *scan.TableScan
}

func (c *correlating) NodeID() primitives.NodeID      { return 1 }
func (c *correlating) Kind() execution.OperatorKind   { return execution.KindFilter }
func (c *correlating) Children() []execution.Operator { return []execution.Operator{c.scan} }

func (c *correlating) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	it, err := execution.Open(ctx, c.scan)
	if err != nil {
		return nil, err
	}
	return execution.NewBaseIterator(func() (tuple.Tuple, error) {
		row, err := execution.Fetch(it)
		if row != nil {
			ctx.SetOuterTuple(row)
		}
		return row, err
	}, it.Close), nil
}

// observing records the outer tuple each worker context carries.
type observing struct {
	source *scan.BatchSource

	mu    sync.Mutex
	outer []tuple.Tuple
}

func (o *observing) NodeID() primitives.NodeID      { return 2 }
func (o *observing) Kind() execution.OperatorKind   { return execution.KindFilter }
func (o *observing) Children() []execution.Operator { return []execution.Operator{o.source} }

func (o *observing) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	o.mu.Lock()
	o.outer = append(o.outer, ctx.OuterTuple())
	o.mu.Unlock()
	return execution.Open(ctx, o.source)
}

func TestBatchParallel_WorkersDoNotSeeProducerContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	source := scan.NewBatchSource(3)
	body := &observing{source: source}
	p, err := NewBatchParallel(0, &correlating{scan: scan.NewTableScan(4, customers(30))}, source,
		body, Options{BatchSize: 2, Workers: 4, QueueSize: 1})
	require.NoError(t, err)

	ctx := execution.ForPlan(context.Background(), nil, p)
	rows, err := execution.Drain(ctx, p)
	require.NoError(t, err)
	assert.Len(t, rows, 30)

	require.Len(t, body.outer, 15)
	for _, outer := range body.outer {
		assert.Nil(t, outer)
	}
	assert.NotNil(t, ctx.OuterTuple(), "the producer still drives the parent context")
}

func TestBatchParallel_EarlyClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := parallelPlan(t, customers(200), orders(200), Options{BatchSize: 5, Workers: 4, QueueSize: 1})
	ctx := execution.ForPlan(context.Background(), nil, p)
	it, err := execution.Open(ctx, p)
	require.NoError(t, err)

	row, err := execution.Fetch(it)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NoError(t, it.Close())

	assert.Less(t, ctx.Statistics(2).Snapshot().Rows, int64(300))
}

func TestBatchParallel_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := parallelPlan(t, customers(50), orders(50), Options{BatchSize: 5, Workers: 2, QueueSize: 1})
	_, err := execution.Drain(execution.ForPlan(cctx, nil, p), p)
	require.Error(t, err)
	assert.True(t, dberror.HasCode(err, dberror.CodeQueueInterrupted), err.Error())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBatchParallel_SourceMustBeInBody(t *testing.T) {
	index, err := scan.NewIndexScan(4, orders(4), ordersIndex)
	require.NoError(t, err)
	body := batchJoin(t, 2, scan.NewTableScan(3, customers(4)), index)

	_, err = NewBatchParallel(0, scan.NewTableScan(1, customers(4)), scan.NewBatchSource(5), body, Options{})
	require.Error(t, err)
	assert.True(t, dberror.HasCode(err, dberror.CodeInvalidConfig))

	_, err = NewBatchParallel(0, nil, scan.NewBatchSource(5), body, Options{})
	assert.Error(t, err)
}

func TestBatchParallel_Explain(t *testing.T) {
	p := parallelPlan(t, customers(1), orders(1), Options{BatchSize: 10, Workers: 2, QueueSize: 4})
	out := execution.Explain(p, nil)
	assert.Contains(t, out, "BatchParallel#0 [parallel] batch 10 workers 2 queue 4")
	assert.Contains(t, out, "BatchSource#3")
}
