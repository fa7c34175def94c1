package examples

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payloadbuilder/pkg/cache"
	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/metrics"
)

func session(t *testing.T, d *Dataset) *execution.Session {
	t.Helper()
	s := execution.NewSession()
	require.NoError(t, d.Register(s.Catalog))
	mem, err := cache.NewMemoryProvider(100)
	require.NoError(t, err)
	s.CacheProvider = mem
	return s
}

func TestNewDataset(t *testing.T) {
	d := NewDataset(10, 3)
	assert.Len(t, d.Customers.Rows(), 10)
	// 1+2+3+0 repeated, customers 4 and 8 have no orders
	assert.Len(t, d.Orders.Rows(), 15)
	assert.Equal(t, []string{"customer_id"}, d.OrdersIndex.Columns)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies() {
		got, err := ParseStrategy(" " + string(s) + " ")
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStrategy("sort-merge")
	assert.Error(t, err)
}

func TestCompare_StrategiesAgree(t *testing.T) {
	modes := []struct {
		name string
		opts PlanOptions
		rows int
	}{
		{name: "inner", opts: PlanOptions{}, rows: 15},
		{name: "left", opts: PlanOptions{Left: true}, rows: 17},
		{name: "populate", opts: PlanOptions{Populate: true}, rows: 8},
		{name: "populate left", opts: PlanOptions{Populate: true, Left: true}, rows: 10},
		{name: "small batches", opts: PlanOptions{BatchSize: 3}, rows: 15},
		{name: "cached", opts: PlanOptions{Cache: true, BatchSize: 4}, rows: 15},
		{name: "parallel", opts: PlanOptions{Parallel: true, BatchSize: 2, Left: true}, rows: 17},
	}

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			d := NewDataset(10, 3)
			report, err := d.Compare(context.Background(), session(t, d), mode.opts, 2)
			require.NoError(t, err)

			assert.True(t, report.Equivalent(), "mismatches: %v", report.Mismatches)
			require.Len(t, report.Timings, len(Strategies()))
			for i, timing := range report.Timings {
				assert.Equal(t, Strategies()[i], timing.Strategy)
				assert.Equal(t, 2, timing.Iterations)
				assert.Equal(t, mode.rows, timing.Rows, timing.Strategy)
				assert.Contains(t, report.Runs[i].Plan, "[join]")
			}
		})
	}
}

func TestExecute_ExplainsWithStatistics(t *testing.T) {
	d := NewDataset(6, 2)
	s := session(t, d)

	run, err := d.Execute(context.Background(), s, BatchHash, PlanOptions{Cache: true, BatchSize: 2})
	require.NoError(t, err)
	require.NoError(t, run.Err)
	assert.Len(t, run.Rows, 6)
	assert.Contains(t, run.Plan, "BatchHashJoin#0 [join]")
	assert.Contains(t, run.Plan, "BatchCache#2 [cache]")
	assert.Contains(t, run.Plan, "IndexScan#3 [source]")

	run, err = d.Execute(context.Background(), s, BatchHash, PlanOptions{Parallel: true})
	require.NoError(t, err)
	require.NoError(t, run.Err)
	assert.Contains(t, run.Plan, "BatchParallel#0 [parallel]")
	assert.Contains(t, run.Plan, "BatchSource#3 [source]")
}

func TestExecute_RecordsMetrics(t *testing.T) {
	d := NewDataset(4, 1)
	s := session(t, d)
	reg := prometheus.NewRegistry()
	s.Metrics = metrics.New(reg)

	_, err := d.Execute(context.Background(), s, BatchMerge, PlanOptions{})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "payloadbuilder_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPlan_MissingIndex(t *testing.T) {
	d := NewDataset(3, 1)
	s := execution.NewSession()

	_, err := d.Execute(context.Background(), s, BatchMerge, PlanOptions{})
	require.Error(t, err)
	assert.True(t, dberror.HasCode(err, dberror.CodeMissingIndex))

	run, err := d.Execute(context.Background(), s, Hash, PlanOptions{})
	require.NoError(t, err, "hash joins need no index")
	assert.NoError(t, run.Err)
}

func TestCompare_FailureCancelsOthers(t *testing.T) {
	d := NewDataset(3, 1)
	s := execution.NewSession()

	_, err := d.Compare(context.Background(), s, PlanOptions{}, 1)
	assert.True(t, dberror.HasCode(err, dberror.CodeMissingIndex))
}

func TestTiming(t *testing.T) {
	ms := time.Millisecond
	got := timing(Hash, 5, []time.Duration{4 * ms, 1 * ms, 3 * ms, 2 * ms})
	assert.Equal(t, Timing{
		Strategy:   Hash,
		Iterations: 4,
		Rows:       5,
		Avg:        2500 * time.Microsecond,
		Min:        ms,
		Max:        4 * ms,
		Median:     3 * ms,
		P95:        4 * ms,
	}, got)
}
