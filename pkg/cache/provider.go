// Package cache holds the providers behind the batch cache operator.
//
// A provider stores lists of tuples under string keys, grouped by cache name.
// Providers are shared by every query and by every batch parallel worker, so
// implementations must be safe for concurrent use.
package cache

import (
	"context"
	"time"

	"payloadbuilder/pkg/tuple"
)

// Provider is a bulk tuple cache.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// GetAll returns the cached rows of every key found. Keys that are not
	// cached are absent from the result; a key cached with no rows is present
	// with an empty slice.
	GetAll(ctx context.Context, cacheName string, keys []string) (map[string][]tuple.Tuple, error)

	// PutAll stores entries. A zero ttl means the entries do not expire.
	PutAll(ctx context.Context, cacheName string, entries map[string][]tuple.Tuple, ttl time.Duration) error

	// Flush removes every entry of a cache.
	Flush(ctx context.Context, cacheName string) error
}
