// Package cache provides TTL-based key-value storage for sessions, directory
// lookups and rate-limit counters.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// Counter provides fixed-window counters for rate limiting.
type Counter interface {
	// Increment adds delta to the counter and returns the new value and the
	// time the window resets. A missing key starts a new window of length ttl.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error)

	// GetCount returns the current counter value, 0 if absent.
	GetCount(ctx context.Context, key string) (int64, error)

	// Reset removes the counter.
	Reset(ctx context.Context, key string) error
}

// CacheWithCounter combines Cache and Counter interfaces.
type CacheWithCounter interface {
	Cache
	Counter
}

// Default TTLs for different cache categories.
const (
	TTLDirectory = 15 * time.Minute // friend id / email -> user id lookups
	TTLRateLimit = 1 * time.Minute  // rate limit window
)

// DriverFactory builds a cache from its [cache.drivers.<name>] section.
type DriverFactory func(config map[string]any) (CacheWithCounter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver registers a cache driver by name, typically from init().
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// NewFromConfig builds the named driver with its section from driverConfigs.
func NewFromConfig(name string, driverConfigs map[string]map[string]any) (CacheWithCounter, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver: %s (available: %v)", name, AvailableDrivers())
	}
	return factory(driverConfigs[name])
}

// AvailableDrivers returns the sorted list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
