// Package memory provides an in-memory implementation of adm.Cache.
// It is intended for tests, development and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/adapters"
)

// Ensure Cache implements all required interfaces.
var (
	_ adapters.CacheAdapter  = (*Cache)(nil)
	_ adapters.HealthChecker = (*Cache)(nil)
)

// Cache is a thread-safe in-memory adm.Cache with per-entry expiry.
//
// Values are stored as given unless a codec is configured, in which case
// they are encoded on write and decoded on read so callers never share
// stored values.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	codec   adm.Codec
	now     func() time.Time
	closed  bool
}

type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Option configures a Cache.
type Option func(*Cache)

// WithCodec stores encoded copies of values.
func WithCodec(c adm.Codec) Option {
	return func(m *Cache) {
		m.codec = c
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Cache) {
		m.now = now
	}
}

// NewCache creates an empty in-memory cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exist reports whether a live entry is stored under key.
func (c *Cache) Exist(ctx context.Context, key string, opts adm.CacheOptions) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	storageKey, err := adapters.StorageKey(key, opts)
	if err != nil {
		return false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, adapters.ErrAdapterClosed
	}
	e, ok := c.entries[storageKey]
	return ok && !e.expired(c.now()), nil
}

// Read returns the live entry stored under key.
func (c *Cache) Read(ctx context.Context, key string, opts adm.CacheOptions) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	storageKey, err := adapters.StorageKey(key, opts)
	if err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, false, adapters.ErrAdapterClosed
	}
	e, ok := c.entries[storageKey]
	c.mu.RUnlock()
	if !ok || e.expired(c.now()) {
		return nil, false, nil
	}

	if c.codec == nil {
		return e.value, true, nil
	}
	v, err := adapters.CacheEntry{Key: storageKey, Value: e.value.([]byte)}.Decode(c.codec)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Write stores value under key, expiring after opts.ExpiresIn.
func (c *Cache) Write(ctx context.Context, key string, value any, opts adm.CacheOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	storageKey, err := adapters.StorageKey(key, opts)
	if err != nil {
		return err
	}

	stored := value
	if c.codec != nil {
		e, err := adapters.NewCacheEntry(c.codec, key, value, opts, c.now())
		if err != nil {
			return err
		}
		stored = e.Value
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return adapters.ErrAdapterClosed
	}
	c.entries[storageKey] = entry{value: stored, expiresAt: adapters.ExpiresAt(opts, c.now())}
	return nil
}

// DeleteMatched removes every key matching the glob pattern.
func (c *Cache) DeleteMatched(ctx context.Context, pattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	re, err := adapters.GlobToRegexp(pattern)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, adapters.ErrAdapterClosed
	}
	n := 0
	for k := range c.entries {
		if re.MatchString(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

// Prune removes expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the stored keys.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Ping reports whether the cache is open.
func (c *Cache) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return adapters.ErrAdapterClosed
	}
	return ctx.Err()
}

// Close closes the cache. Further operations return ErrAdapterClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries = nil
	return nil
}
