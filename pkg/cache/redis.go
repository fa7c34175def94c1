package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"payloadbuilder/pkg/logging"
	"payloadbuilder/pkg/tuple"
)

const defaultRedisPrefix = "payloadbuilder"

// RedisProvider stores entries in Redis as snappy compressed, typed JSON.
// Lookups are a single MGET, writes a single pipeline of SETs.
type RedisProvider struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisProvider.
type RedisOption func(*RedisProvider)

// WithKeyPrefix sets the prefix of every key written.
func WithKeyPrefix(prefix string) RedisOption {
	return func(p *RedisProvider) {
		p.prefix = prefix
	}
}

// NewRedisProvider wraps an existing client.
func NewRedisProvider(client redis.UniversalClient, opts ...RedisOption) *RedisProvider {
	p := &RedisProvider{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr string, opts ...RedisOption) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisProvider(client, opts...), nil
}

func (r *RedisProvider) Name() string {
	return "redis"
}

func (r *RedisProvider) key(cacheName, key string) string {
	return r.prefix + ":" + cacheName + ":" + key
}

func (r *RedisProvider) GetAll(ctx context.Context, cacheName string, keys []string) (map[string][]tuple.Tuple, error) {
	result := make(map[string][]tuple.Tuple, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = r.key(cacheName, k)
	}

	values, err := r.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		rows, err := DecodeRows([]byte(s))
		if err != nil {
			// a corrupt entry is a miss; it is overwritten by the next PutAll
			logging.WithCache(cacheName, r.Name()).Warn("failed to decode cache entry", "key", keys[i], "error", err)
			continue
		}
		result[keys[i]] = rows
	}
	return result, nil
}

func (r *RedisProvider) PutAll(ctx context.Context, cacheName string, entries map[string][]tuple.Tuple, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for key, rows := range entries {
		payload, err := EncodeRows(rows)
		if err != nil {
			return err
		}
		pipe.Set(ctx, r.key(cacheName, key), payload, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline set: %w", err)
	}
	return nil
}

func (r *RedisProvider) Flush(ctx context.Context, cacheName string) error {
	iter := r.client.Scan(ctx, 0, r.key(cacheName, "*"), 100).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisProvider) Close() error {
	return r.client.Close()
}
