// Package config loads engine settings from an optional YAML file and
// PAYLOADBUILDER_ environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sosodev/duration"
	"github.com/spf13/viper"

	"payloadbuilder/pkg/cache"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/logging"
	"payloadbuilder/pkg/metrics"
)

// EnvPrefix prefixes every environment override, e.g.
// PAYLOADBUILDER_PARALLEL_WORKERS=8.
const EnvPrefix = "PAYLOADBUILDER"

type Config struct {
	Execution ExecutionConfig `mapstructure:"execution"`
	Parallel  ParallelConfig  `mapstructure:"parallel"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ExecutionConfig struct {
	DefaultBatchSize int  `mapstructure:"default_batch_size"`
	AssertSorted     bool `mapstructure:"assert_sorted"`
}

type ParallelConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	BatchSize int `mapstructure:"batch_size"`
}

type CacheConfig struct {
	// Provider is "memory" or "redis".
	Provider   string `mapstructure:"provider"`
	MemorySize int    `mapstructure:"memory_size"`
	RedisAddr  string `mapstructure:"redis_addr"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	// DefaultTTL is an ISO-8601 duration. Empty disables expiry.
	DefaultTTL string `mapstructure:"default_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus exporter. Empty disables it.
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("execution.default_batch_size", execution.DefaultBatchSize)
	v.SetDefault("execution.assert_sorted", false)
	v.SetDefault("parallel.workers", 4)
	v.SetDefault("parallel.queue_size", 256)
	v.SetDefault("parallel.batch_size", 500)
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.memory_size", 10000)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.key_prefix", "payloadbuilder")
	v.SetDefault("cache.default_ttl", "PT10M")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "")
	v.SetDefault("metrics.addr", "")
}

// Load reads path when it is not empty, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// The defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, n int) {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
	}
	positive("execution.default_batch_size", c.Execution.DefaultBatchSize)
	positive("parallel.workers", c.Parallel.Workers)
	positive("parallel.queue_size", c.Parallel.QueueSize)
	positive("parallel.batch_size", c.Parallel.BatchSize)

	switch c.Cache.Provider {
	case "memory":
		positive("cache.memory_size", c.Cache.MemorySize)
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.provider %q", c.Cache.Provider))
	}
	if _, err := c.Cache.TTL(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// TTL parses DefaultTTL.
func (c CacheConfig) TTL() (time.Duration, error) {
	if c.DefaultTTL == "" {
		return 0, nil
	}
	d, err := duration.Parse(c.DefaultTTL)
	if err != nil {
		return 0, fmt.Errorf("cache.default_ttl %q: %w", c.DefaultTTL, err)
	}
	ttl := d.ToTimeDuration()
	if ttl <= 0 {
		return 0, fmt.Errorf("cache.default_ttl %q must be positive", c.DefaultTTL)
	}
	return ttl, nil
}

// LoggerConfig translates the logging section.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:      logging.ParseLevel(c.Logging.Level),
		Format:     strings.ToLower(c.Logging.Format),
		OutputPath: c.Logging.Output,
	}
}

// Session builds a session from the configuration. A nil registry disables
// metrics. The returned close function releases the cache provider.
func (c *Config) Session(ctx context.Context, reg *prometheus.Registry) (*execution.Session, func() error, error) {
	ttl, err := c.Cache.TTL()
	if err != nil {
		return nil, nil, err
	}

	s := execution.NewSession()
	s.DefaultBatchSize = c.Execution.DefaultBatchSize
	s.AssertSorted = c.Execution.AssertSorted
	s.Parallel = execution.ParallelOptions{
		Workers:   c.Parallel.Workers,
		QueueSize: c.Parallel.QueueSize,
		BatchSize: c.Parallel.BatchSize,
	}
	s.DefaultCacheTTL = ttl
	if reg != nil {
		s.Metrics = metrics.New(reg)
	}

	closer := func() error { return nil }
	var provider cache.Provider
	switch c.Cache.Provider {
	case "redis":
		r, err := cache.DialRedis(ctx, c.Cache.RedisAddr, cache.WithKeyPrefix(c.Cache.KeyPrefix))
		if err != nil {
			return nil, nil, err
		}
		provider, closer = r, r.Close
	default:
		m, err := cache.NewMemoryProvider(c.Cache.MemorySize)
		if err != nil {
			return nil, nil, err
		}
		provider = m
	}
	s.CacheProvider = cache.Instrument(provider, s.Metrics)

	logging.WithComponent("config").Debug("session configured",
		"cache_provider", provider.Name(),
		"batch_size", s.DefaultBatchSize,
		"workers", s.Parallel.Workers,
		"default_ttl", ttl)
	return s, closer, nil
}
