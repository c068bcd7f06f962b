// Package redis provides a Redis cache driver (go-redis). Use it when several
// calshare instances must share sessions and rate-limit counters.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/MahdiBaghbani/calshare-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("redis", func(config map[string]any) (cache.CacheWithCounter, error) {
		c := DefaultConfig()
		if err := cfg.Decode(config, c); err != nil {
			return nil, fmt.Errorf("redis cache config: %w", err)
		}
		return New(c)
	})
}

// Config holds the [cache.drivers.redis] section.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// DefaultConfig returns sensible defaults for a local Redis.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "calshare:"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 15 * time.Minute
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
}

// Cache is a Redis-backed cache.CacheWithCounter.
type Cache struct {
	client     *goredis.Client
	prefix     string
	defaultTTL time.Duration
}

// New connects to Redis and fails fast if the server does not answer PING.
func New(c *Config) (*Cache, error) {
	if c == nil {
		c = DefaultConfig()
	}
	c.ApplyDefaults()

	client := goredis.NewClient(&goredis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
		MaxRetries:   -1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis health check failed for %s: %w", c.Addr, err)
	}

	return &Cache{client: client, prefix: c.KeyPrefix, defaultTTL: c.DefaultTTL}, nil
}

func (c *Cache) key(k string) string { return c.prefix + k }

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment adds delta to a counter. The first increment of a window sets its expiry;
// later increments keep it, so the window is fixed.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	k := c.key(key)

	var incr *goredis.IntCmd
	var pttl *goredis.DurationCmd
	_, err := c.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.IncrBy(ctx, k, delta)
		pttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}

	now := time.Now()
	remaining := pttl.Val()
	if remaining <= 0 {
		// new key (or one without expiry): start the window
		if err := c.client.PExpire(ctx, k, ttl).Err(); err != nil {
			return 0, time.Time{}, err
		}
		remaining = ttl
	}
	return incr.Val(), now.Add(remaining), nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

// Reset removes a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Close closes the client connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ensure Cache implements CacheWithCounter.
var _ cache.CacheWithCounter = (*Cache)(nil)
