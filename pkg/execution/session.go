package execution

import (
	"time"

	"payloadbuilder/pkg/cache"
	"payloadbuilder/pkg/catalog"
	"payloadbuilder/pkg/metrics"
)

// DefaultBatchSize is the number of outer rows per batch when neither the
// operator nor the index says otherwise.
const DefaultBatchSize = 100

// ParallelOptions are the defaults of batch parallel operators.
type ParallelOptions struct {
	Workers   int
	QueueSize int
	BatchSize int
}

// Session holds what outlives a single statement: defaults, the index
// catalog, the cache provider and metrics. A session is shared by every
// ExecutionContext created from it, including parallel worker clones, and
// must not be modified once execution started.
type Session struct {
	DefaultBatchSize int

	// AssertSorted makes batch merge joins verify that both inputs are
	// ordered, failing with UNSORTED_INPUT instead of producing wrong results.
	AssertSorted bool

	Parallel ParallelOptions

	Catalog       *catalog.Catalog
	CacheProvider cache.Provider
	Metrics       *metrics.Metrics

	// DefaultCacheTTL applies to batch caches without a TTL expression.
	// Zero keeps entries until the provider evicts them.
	DefaultCacheTTL time.Duration
}

// NewSession creates a session with default settings and an empty catalog.
func NewSession() *Session {
	return &Session{
		DefaultBatchSize: DefaultBatchSize,
		Parallel: ParallelOptions{
			Workers:   4,
			QueueSize: 256,
			BatchSize: 500,
		},
		Catalog: catalog.New(),
	}
}

// BatchSize returns the default batch size of batching joins.
func (s *Session) BatchSize() int {
	if s == nil || s.DefaultBatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.DefaultBatchSize
}
