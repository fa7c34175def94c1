package cache

import (
	"context"
	"time"

	"payloadbuilder/pkg/metrics"
	"payloadbuilder/pkg/tuple"
)

// Instrument returns a provider that records the latency and outcome of every
// call of next.
func Instrument(next Provider, m *metrics.Metrics) Provider {
	if m == nil {
		return next
	}
	return &instrumentedProvider{next: next, metrics: m}
}

type instrumentedProvider struct {
	next    Provider
	metrics *metrics.Metrics
}

func (i *instrumentedProvider) Name() string {
	return i.next.Name()
}

func (i *instrumentedProvider) GetAll(ctx context.Context, cacheName string, keys []string) (map[string][]tuple.Tuple, error) {
	start := time.Now()
	result, err := i.next.GetAll(ctx, cacheName, keys)
	i.metrics.ObserveCacheOperation(i.next.Name(), "get_all", time.Since(start), err)
	return result, err
}

func (i *instrumentedProvider) PutAll(ctx context.Context, cacheName string, entries map[string][]tuple.Tuple, ttl time.Duration) error {
	start := time.Now()
	err := i.next.PutAll(ctx, cacheName, entries, ttl)
	i.metrics.ObserveCacheOperation(i.next.Name(), "put_all", time.Since(start), err)
	return err
}

func (i *instrumentedProvider) Flush(ctx context.Context, cacheName string) error {
	start := time.Now()
	err := i.next.Flush(ctx, cacheName)
	i.metrics.ObserveCacheOperation(i.next.Name(), "flush", time.Since(start), err)
	return err
}
