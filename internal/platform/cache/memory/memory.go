// Package memory provides the in-process cache driver. It backs sessions,
// directory lookups and rate-limit windows on a single instance.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(config map[string]any) (cache.CacheWithCounter, error) {
		var c Config
		if err := cfg.Decode(config, &c); err != nil {
			return nil, fmt.Errorf("memory cache config: %w", err)
		}
		return New(c.DefaultTTL, c.CleanupInterval), nil
	})
}

// Config holds the [cache.drivers.memory] section.
type Config struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = cache.TTLDirectory
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
}

// entry is a value or a counter with an absolute expiry.
type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (e *entry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// Cache keeps values and counters in two maps guarded by one lock.
type Cache struct {
	mu         sync.RWMutex
	values     map[string]*entry
	counters   map[string]*entry
	defaultTTL time.Duration
	now        func() time.Time

	stopClean chan struct{}
	closeOnce sync.Once
}

// New creates a cache. A zero cleanupInterval disables background eviction;
// expired entries are then only hidden, never freed.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		values:     make(map[string]*entry),
		counters:   make(map[string]*entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stopClean:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// SetClock replaces the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Evict()
		case <-c.stopClean:
			return
		}
	}
}

// Evict frees every expired value and counter and returns how many were removed.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, m := range []map[string]*entry{c.values, c.counters} {
		for k, e := range m {
			if !e.live(now) {
				delete(m, k)
				removed++
			}
		}
	}
	return removed
}

// Get returns a copy of the value stored under key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.values[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if !e.live(c.now()) {
		return nil, cache.ErrExpired
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. A non-positive ttl uses the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = &entry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(c.ttl(ttl)),
	}
	return nil
}

// Delete removes a value. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

// Exists reports whether a live value is stored under key.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.values[key]
	return ok && e.live(c.now()), nil
}

// Increment adds delta to a fixed-window counter. An absent or expired
// counter starts a new window of length ttl.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.counters[key]
	if !ok || !e.live(now) {
		e = &entry{expiresAt: now.Add(c.ttl(ttl))}
		c.counters[key] = e
	}
	e.count += delta
	return e.count, e.expiresAt, nil
}

// GetCount returns the counter value, 0 if absent or expired.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.counters[key]
	if !ok || !e.live(c.now()) {
		return 0, nil
	}
	return e.count, nil
}

// Reset removes a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stopClean) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
