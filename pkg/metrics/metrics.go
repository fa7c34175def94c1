// Package metrics exposes Prometheus collectors for the execution engine.
//
// A nil *Metrics is valid and records nothing, so operators never need to
// check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "payloadbuilder"

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry prometheus.Gatherer

	queries          *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	batches          *prometheus.CounterVec
	innerInvocations *prometheus.CounterVec
	batchOuterRows   *prometheus.HistogramVec
	cacheRequests    *prometheus.CounterVec
	cacheWrites      *prometheus.CounterVec
	cacheOperation   *prometheus.HistogramVec
	parallelBatches  *prometheus.CounterVec
}

// New registers the engine collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of executed plans by outcome.",
		}, []string{"status"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Wall time from open to close of a plan.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"plan"}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_batches_total",
			Help:      "Outer batches processed by batch joins.",
		}, []string{"strategy"}),
		innerInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_inner_invocations_total",
			Help:      "Times a join opened its inner branch.",
		}, []string{"strategy"}),
		batchOuterRows: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "join_batch_outer_rows",
			Help:      "Outer rows per batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"strategy"}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Batch cache key lookups by result.",
		}, []string{"cache", "result"}),
		cacheWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Batch cache entries written back.",
		}, []string{"cache"}),
		cacheOperation: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_provider_operation_seconds",
			Help:      "Latency of cache provider operations.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"provider", "operation", "status"}),
		parallelBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parallel_batches_total",
			Help:      "Batches run by batch parallel workers by outcome.",
		}, []string{"status"}),
	}
}

// Gatherer returns the registry the collectors were registered on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordQuery records one executed plan.
func (m *Metrics) RecordQuery(plan string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(status(err)).Inc()
	m.queryDuration.WithLabelValues(plan).Observe(d.Seconds())
}

// RecordBatch records one batch of a batch join.
func (m *Metrics) RecordBatch(strategy string, outerRows int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(strategy).Inc()
	m.batchOuterRows.WithLabelValues(strategy).Observe(float64(outerRows))
}

// RecordInnerInvocation records a join opening its inner branch.
func (m *Metrics) RecordInnerInvocation(strategy string) {
	if m == nil {
		return
	}
	m.innerInvocations.WithLabelValues(strategy).Inc()
}

// RecordCacheLookup records the hits and misses of a bulk cache lookup.
func (m *Metrics) RecordCacheLookup(cache string, hits, misses int) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cache, "hit").Add(float64(hits))
	m.cacheRequests.WithLabelValues(cache, "miss").Add(float64(misses))
}

// RecordCacheWrite records entries written back to a cache.
func (m *Metrics) RecordCacheWrite(cache string, entries int) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(cache).Add(float64(entries))
}

// ObserveCacheOperation records the latency of a provider call.
func (m *Metrics) ObserveCacheOperation(provider, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.cacheOperation.WithLabelValues(provider, operation, status(err)).Observe(d.Seconds())
}

// RecordParallelBatch records a batch finished by a parallel worker.
func (m *Metrics) RecordParallelBatch(err error) {
	if m == nil {
		return
	}
	m.parallelBatches.WithLabelValues(status(err)).Inc()
}
