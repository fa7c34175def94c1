package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payloadbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, execution.DefaultBatchSize, cfg.Execution.DefaultBatchSize)
	assert.False(t, cfg.Execution.AssertSorted)
	assert.Equal(t, ParallelConfig{Workers: 4, QueueSize: 256, BatchSize: 500}, cfg.Parallel)
	assert.Equal(t, "memory", cfg.Cache.Provider)
	assert.Equal(t, "PT10M", cfg.Cache.DefaultTTL)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
execution:
  default_batch_size: 50
  assert_sorted: true
parallel:
  workers: 2
cache:
  default_ttl: PT1H
logging:
  level: debug
  format: json
`)
	t.Setenv("PAYLOADBUILDER_PARALLEL_WORKERS", "8")
	t.Setenv("PAYLOADBUILDER_METRICS_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Execution.DefaultBatchSize)
	assert.True(t, cfg.Execution.AssertSorted)
	assert.Equal(t, 8, cfg.Parallel.Workers, "environment wins over the file")
	assert.Equal(t, 256, cfg.Parallel.QueueSize)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)

	ttl, err := cfg.Cache.TTL()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "batch size", mutate: func(c *Config) { c.Execution.DefaultBatchSize = 0 }, want: "execution.default_batch_size"},
		{name: "workers", mutate: func(c *Config) { c.Parallel.Workers = -1 }, want: "parallel.workers"},
		{name: "queue", mutate: func(c *Config) { c.Parallel.QueueSize = 0 }, want: "parallel.queue_size"},
		{name: "memory size", mutate: func(c *Config) { c.Cache.MemorySize = 0 }, want: "cache.memory_size"},
		{name: "provider", mutate: func(c *Config) { c.Cache.Provider = "memcached" }, want: "cache.provider"},
		{name: "redis addr", mutate: func(c *Config) { c.Cache.Provider = "redis" }, want: "cache.redis_addr"},
		{name: "ttl", mutate: func(c *Config) { c.Cache.DefaultTTL = "10 minutes" }, want: "cache.default_ttl"},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.DefaultTTL = "PT0S" }, want: "cache.default_ttl"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, want: "logging.format"},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSession_Memory(t *testing.T) {
	cfg := Default()
	cfg.Execution.DefaultBatchSize = 7
	cfg.Execution.AssertSorted = true

	s, closeFn, err := cfg.Session(context.Background(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeFn()) }()

	assert.Equal(t, 7, s.BatchSize())
	assert.True(t, s.AssertSorted)
	assert.Equal(t, 4, s.Parallel.Workers)
	assert.Equal(t, 10*time.Minute, s.DefaultCacheTTL)
	assert.NotNil(t, s.Metrics)
	require.NotNil(t, s.CacheProvider)
	assert.Equal(t, "memory", s.CacheProvider.Name())
}

func TestSession_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := Default()
	cfg.Cache.Provider = "redis"
	cfg.Cache.RedisAddr = mr.Addr()
	cfg.Cache.DefaultTTL = ""

	s, closeFn, err := cfg.Session(context.Background(), nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeFn()) }()

	assert.Equal(t, "redis", s.CacheProvider.Name())
	assert.Nil(t, s.Metrics)
	assert.Zero(t, s.DefaultCacheTTL)
}

func TestSession_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := Default()
	cfg.Cache.Provider = "redis"
	cfg.Cache.RedisAddr = addr

	_, _, err := cfg.Session(context.Background(), nil)
	assert.Error(t, err)
}
