package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordBatch("batch_hash", 10)
	m.RecordBatch("batch_hash", 3)
	m.RecordInnerInvocation("batch_hash")
	m.RecordCacheLookup("product", 2, 1)
	m.RecordCacheWrite("product", 1)
	m.RecordParallelBatch(nil)
	m.RecordParallelBatch(errors.New("boom"))
	m.RecordQuery("demo", time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues("batch_hash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.innerInvocations.WithLabelValues("batch_hash")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("product", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("product", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheWrites.WithLabelValues("product")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parallelBatches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordBatch("hash", 1)
		m.RecordInnerInvocation("hash")
		m.RecordCacheLookup("c", 1, 1)
		m.RecordCacheWrite("c", 1)
		m.ObserveCacheOperation("memory", "get_all", time.Millisecond, nil)
		m.RecordParallelBatch(nil)
		m.RecordQuery("demo", time.Millisecond, nil)
	})
}

func TestExporter_ServesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordBatch("batch_merge", 4)

	e, err := m.Serve("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, e.Shutdown(ctx))
	})

	resp, err := http.Get("http://" + e.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `payloadbuilder_join_batches_total{strategy="batch_merge"} 1`)

	health, err := http.Get("http://" + e.Addr() + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
