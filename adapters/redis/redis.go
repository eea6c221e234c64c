// Package redis provides a Redis implementation of adm.Cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/adapters"
	redis "github.com/redis/go-redis/v9"
)

// Sentinel errors for the redis adapter.
var (
	ErrAdapterClosed = adapters.ErrAdapterClosed
	ErrEmptyKey      = adapters.ErrEmptyKey
	ErrNoAddress     = errors.New("adm/redis: address is required")
)

// Ensure Adapter implements required interfaces.
var (
	_ adapters.CacheAdapter  = (*Adapter)(nil)
	_ adapters.HealthChecker = (*Adapter)(nil)
)

// DefaultScanCount is the COUNT hint used while scanning keys for DeleteMatched.
const DefaultScanCount = 250

// Adapter stores encoded cache entries in Redis, relying on key TTLs for expiry.
type Adapter struct {
	client    *redis.Client
	codec     adm.Codec
	keyPrefix string
	scanCount int64
	closed    atomic.Bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithCodec sets the codec used to encode cached values.
func WithCodec(c adm.Codec) Option {
	return func(a *Adapter) {
		a.codec = c
	}
}

// WithKeyPrefix prepends prefix to every Redis key the adapter touches.
func WithKeyPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.keyPrefix = prefix
	}
}

// WithScanCount sets the SCAN COUNT hint.
func WithScanCount(n int64) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.scanCount = n
		}
	}
}

// Config holds connection settings for NewAdapterFromConfig.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NewAdapter creates an adapter from a redis:// URL.
func NewAdapter(url string, opts ...Option) (*Adapter, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("adm/redis: invalid url: %w", err)
	}
	return NewAdapterWithClient(redis.NewClient(o), opts...), nil
}

// NewAdapterFromConfig creates an adapter from address settings.
func NewAdapterFromConfig(cfg Config, opts ...Option) (*Adapter, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, ErrNoAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Password),
		DB:       cfg.DB,
	})
	return NewAdapterWithClient(client, opts...), nil
}

// NewAdapterWithClient creates an adapter on an existing client.
func NewAdapterWithClient(client *redis.Client, opts ...Option) *Adapter {
	a := &Adapter{
		client:    client,
		scanCount: DefaultScanCount,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.codec = adapters.CodecOrDefault(a.codec)
	return a
}

func (a *Adapter) key(key string, opts adm.CacheOptions) (string, error) {
	storageKey, err := adapters.StorageKey(key, opts)
	if err != nil {
		return "", err
	}
	return a.keyPrefix + storageKey, nil
}

// Exist reports whether key is present.
func (a *Adapter) Exist(ctx context.Context, key string, opts adm.CacheOptions) (bool, error) {
	if a.closed.Load() {
		return false, ErrAdapterClosed
	}
	k, err := a.key(key, opts)
	if err != nil {
		return false, err
	}
	n, err := a.client.Exists(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("adm/redis: failed to check key: %w", err)
	}
	return n > 0, nil
}

// Read returns the value stored under key.
func (a *Adapter) Read(ctx context.Context, key string, opts adm.CacheOptions) (any, bool, error) {
	if a.closed.Load() {
		return nil, false, ErrAdapterClosed
	}
	k, err := a.key(key, opts)
	if err != nil {
		return nil, false, err
	}
	data, err := a.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("adm/redis: failed to read key: %w", err)
	}

	v, err := adapters.CacheEntry{Key: k, Value: data}.Decode(a.codec)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Write stores value under key with opts.ExpiresIn as its TTL.
func (a *Adapter) Write(ctx context.Context, key string, value any, opts adm.CacheOptions) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	entry, err := adapters.NewCacheEntry(a.codec, key, value, opts, time.Now())
	if err != nil {
		return err
	}

	ttl := opts.ExpiresIn
	if ttl < 0 {
		ttl = 0
	}
	if err := a.client.Set(ctx, a.keyPrefix+entry.Key, entry.Value, ttl).Err(); err != nil {
		return fmt.Errorf("adm/redis: failed to write key: %w", err)
	}
	return nil
}

// DeleteMatched scans for keys matching the glob pattern and deletes them.
func (a *Adapter) DeleteMatched(ctx context.Context, pattern string) (int, error) {
	if a.closed.Load() {
		return 0, ErrAdapterClosed
	}
	match, err := adapters.GlobToRedis(pattern)
	if err != nil {
		return 0, err
	}
	match = escapeRedisLiteral(a.keyPrefix) + match

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := a.client.Scan(ctx, cursor, match, a.scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("adm/redis: failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := a.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("adm/redis: failed to delete keys: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func escapeRedisLiteral(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping checks the connection.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	return a.client.Ping(ctx).Err()
}

// Close closes the client.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	return a.client.Close()
}

// Client returns the underlying client.
func (a *Adapter) Client() *redis.Client {
	return a.client
}
