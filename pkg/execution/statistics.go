package execution

import (
	"fmt"
	"time"

	"go.uber.org/atomic"

	"payloadbuilder/pkg/tuple"
)

// NodeStatistics collects runtime counters for one plan node. Counters are
// atomic so a parent can read them while parallel workers are still writing
// to their own copies, and so merging worker copies needs no locks.
type NodeStatistics struct {
	executions    atomic.Int64
	rows          atomic.Int64
	batches       atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	openTime      atomic.Duration
	iterationTime atomic.Duration
}

// StatisticsSnapshot is a point in time copy of NodeStatistics.
type StatisticsSnapshot struct {
	Executions    int64
	Rows          int64
	Batches       int64
	CacheHits     int64
	CacheMisses   int64
	OpenTime      time.Duration
	IterationTime time.Duration
}

// AddBatch records one processed batch.
func (s *NodeStatistics) AddBatch() {
	s.batches.Inc()
}

// AddCacheLookups records the outcome of a bulk cache lookup.
func (s *NodeStatistics) AddCacheLookups(hits, misses int) {
	s.cacheHits.Add(int64(hits))
	s.cacheMisses.Add(int64(misses))
}

func (s *NodeStatistics) recordOpen(d time.Duration) {
	s.executions.Inc()
	s.openTime.Add(d)
}

// Merge folds the counters of other into s.
func (s *NodeStatistics) Merge(other *NodeStatistics) {
	s.executions.Add(other.executions.Load())
	s.rows.Add(other.rows.Load())
	s.batches.Add(other.batches.Load())
	s.cacheHits.Add(other.cacheHits.Load())
	s.cacheMisses.Add(other.cacheMisses.Load())
	s.openTime.Add(other.openTime.Load())
	s.iterationTime.Add(other.iterationTime.Load())
}

// Snapshot returns the current counter values.
func (s *NodeStatistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		Executions:    s.executions.Load(),
		Rows:          s.rows.Load(),
		Batches:       s.batches.Load(),
		CacheHits:     s.cacheHits.Load(),
		CacheMisses:   s.cacheMisses.Load(),
		OpenTime:      s.openTime.Load(),
		IterationTime: s.iterationTime.Load(),
	}
}

func (s StatisticsSnapshot) String() string {
	out := fmt.Sprintf("executions=%d rows=%d", s.Executions, s.Rows)
	if s.Batches > 0 {
		out += fmt.Sprintf(" batches=%d", s.Batches)
	}
	if s.CacheHits > 0 || s.CacheMisses > 0 {
		out += fmt.Sprintf(" cache_hits=%d cache_misses=%d", s.CacheHits, s.CacheMisses)
	}
	return out + fmt.Sprintf(" time=%s", (s.OpenTime + s.IterationTime).Round(time.Microsecond))
}

// statisticsIterator counts produced rows and the time spent pulling them.
type statisticsIterator struct {
	it    TupleIterator
	stats *NodeStatistics
}

func (s *statisticsIterator) HasNext() (bool, error) {
	start := time.Now()
	ok, err := s.it.HasNext()
	s.stats.iterationTime.Add(time.Since(start))
	return ok, err
}

func (s *statisticsIterator) Next() (tuple.Tuple, error) {
	t, err := s.it.Next()
	if err == nil {
		s.stats.rows.Inc()
	}
	return t, err
}

func (s *statisticsIterator) Close() error {
	return s.it.Close()
}
