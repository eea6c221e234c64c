// Package adapters provides shared types and utilities for cache backends.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-adm"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// to enable consistent error handling across different backends.
var (
	// ErrEmptyKey is returned when an empty cache key is provided.
	ErrEmptyKey = errors.New("adm: cache key is required")

	// ErrAdapterClosed is returned when operations are attempted on a closed adapter.
	ErrAdapterClosed = errors.New("adm: adapter is closed")

	// ErrInvalidPattern is returned when a DeleteMatched pattern cannot be used.
	ErrInvalidPattern = errors.New("adm: invalid key pattern")
)

// CacheAdapter is an adm.Cache backed by an external store.
type CacheAdapter interface {
	adm.Cache

	// Close releases the resources held by the adapter.
	Close() error
}

// HealthChecker provides health check capabilities.
type HealthChecker interface {
	// Ping checks if the adapter can connect to its backend.
	Ping(ctx context.Context) error
}

// Migrator provides schema migration capabilities.
type Migrator interface {
	// Migrate creates the tables the adapter needs.
	Migrate(ctx context.Context) error
}

// CodecError wraps a failure to encode or decode a cached value.
type CodecError struct {
	Codec string
	Key   string
	Err   error
}

// Error returns the error message.
func (e *CodecError) Error() string {
	return fmt.Sprintf("adm: %s codec failed for key %q: %v", e.Codec, e.Key, e.Err)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *CodecError) Unwrap() error {
	return e.Err
}

// CacheEntry is one stored value as persisted by byte-oriented backends.
type CacheEntry struct {
	// Key is the storage key, namespace included.
	Key string

	// Value is the encoded value.
	Value []byte

	// ExpiresAt is the expiry instant. Zero means the entry never expires.
	ExpiresAt time.Time
}

// Expired reports whether the entry has expired at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TTL returns the remaining lifetime at now, or zero for entries without expiry.
func (e CacheEntry) TTL(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// NewCacheEntry encodes value with codec into an entry for key.
func NewCacheEntry(codec adm.Codec, key string, value any, opts adm.CacheOptions, now time.Time) (CacheEntry, error) {
	storageKey, err := StorageKey(key, opts)
	if err != nil {
		return CacheEntry{}, err
	}
	data, err := codec.Encode(value)
	if err != nil {
		return CacheEntry{}, &CodecError{Codec: codec.Name(), Key: storageKey, Err: err}
	}
	return CacheEntry{Key: storageKey, Value: data, ExpiresAt: ExpiresAt(opts, now)}, nil
}

// Decode decodes the entry value with codec.
func (e CacheEntry) Decode(codec adm.Codec) (any, error) {
	v, err := codec.Decode(e.Value)
	if err != nil {
		return nil, &CodecError{Codec: codec.Name(), Key: e.Key, Err: err}
	}
	return v, nil
}

// StorageKey validates key and applies the namespace of opts.
func StorageKey(key string, opts adm.CacheOptions) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	return opts.NamespacedKey(key), nil
}

// ExpiresAt returns the expiry instant for opts, or zero when the entry
// does not expire.
func ExpiresAt(opts adm.CacheOptions, now time.Time) time.Time {
	if opts.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(opts.ExpiresIn)
}

// CodecOrDefault returns c, or the JSON codec when c is nil.
func CodecOrDefault(c adm.Codec) adm.Codec {
	if c == nil {
		return adm.JSONCodec{}
	}
	return c
}
