package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"payloadbuilder/pkg/tuple"
)

type memoryEntry struct {
	rows    []tuple.Tuple
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryProvider keeps entries in process, one bounded LRU per cache name.
// Expired entries are evicted lazily on read.
type MemoryProvider struct {
	mu     sync.Mutex
	size   int
	caches map[string]*lru.Cache[string, memoryEntry]
	now    func() time.Time
}

// NewMemoryProvider creates a provider that keeps at most size entries per
// cache name.
func NewMemoryProvider(size int) (*MemoryProvider, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory cache size must be positive, got %d", size)
	}
	return &MemoryProvider{
		size:   size,
		caches: make(map[string]*lru.Cache[string, memoryEntry]),
		now:    time.Now,
	}, nil
}

func (m *MemoryProvider) Name() string {
	return "memory"
}

func (m *MemoryProvider) cache(name string, create bool) (*lru.Cache[string, memoryEntry], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.caches[name]
	if ok || !create {
		return c, nil
	}

	c, err := lru.New[string, memoryEntry](m.size)
	if err != nil {
		return nil, err
	}
	m.caches[name] = c
	return c, nil
}

func (m *MemoryProvider) GetAll(_ context.Context, cacheName string, keys []string) (map[string][]tuple.Tuple, error) {
	result := make(map[string][]tuple.Tuple)

	c, err := m.cache(cacheName, false)
	if err != nil || c == nil {
		return result, err
	}

	now := m.now()
	for _, key := range keys {
		entry, ok := c.Get(key)
		if !ok {
			continue
		}
		if entry.expired(now) {
			c.Remove(key)
			continue
		}
		result[key] = entry.rows
	}
	return result, nil
}

func (m *MemoryProvider) PutAll(_ context.Context, cacheName string, entries map[string][]tuple.Tuple, ttl time.Duration) error {
	c, err := m.cache(cacheName, true)
	if err != nil {
		return err
	}

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	for key, rows := range entries {
		if rows == nil {
			rows = []tuple.Tuple{}
		}
		c.Add(key, memoryEntry{rows: rows, expires: expires})
	}
	return nil
}

func (m *MemoryProvider) Flush(_ context.Context, cacheName string) error {
	c, err := m.cache(cacheName, false)
	if err != nil || c == nil {
		return err
	}
	c.Purge()
	return nil
}

// Len returns the number of entries held for a cache, expired or not.
func (m *MemoryProvider) Len(cacheName string) int {
	c, _ := m.cache(cacheName, false)
	if c == nil {
		return 0
	}
	return c.Len()
}
