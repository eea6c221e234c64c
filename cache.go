package adm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache is a key-value store used to keep gateway results.
//
// Values are JSON-shaped data (Objects, slices and scalars). Backends that
// store bytes encode values with a Codec.
type Cache interface {
	// Exist reports whether key is present.
	Exist(ctx context.Context, key string, opts CacheOptions) (bool, error)

	// Read returns the value stored under key.
	Read(ctx context.Context, key string, opts CacheOptions) (value any, found bool, err error)

	// Write stores value under key.
	Write(ctx context.Context, key string, value any, opts CacheOptions) error

	// DeleteMatched removes every key matching a glob pattern where '*'
	// matches any sequence of characters, and returns how many were removed.
	DeleteMatched(ctx context.Context, pattern string) (int, error)
}

// CacheOptions configures one cache operation.
type CacheOptions struct {
	// ExpiresIn is the entry TTL. Zero means no expiry.
	ExpiresIn time.Duration `yaml:"expires_in" json:"expires_in,omitempty"`

	// Namespace is prepended to the key by backends.
	Namespace string `yaml:"namespace" json:"namespace,omitempty"`
}

// Merge returns o overridden by the non-zero fields of other.
func (o CacheOptions) Merge(other CacheOptions) CacheOptions {
	if other.ExpiresIn != 0 {
		o.ExpiresIn = other.ExpiresIn
	}
	if other.Namespace != "" {
		o.Namespace = other.Namespace
	}
	return o
}

// NamespacedKey returns key with the namespace prepended.
func (o CacheOptions) NamespacedKey(key string) string {
	if o.Namespace == "" {
		return key
	}
	return o.Namespace + ":" + key
}

// OptionsStore resolves named cache options such as
// "dao_article_get_options". Named entries are merged over Default.
type OptionsStore struct {
	Default CacheOptions            `yaml:"default"`
	Entries map[string]CacheOptions `yaml:"entries"`
}

// NewOptionsStore creates an OptionsStore.
func NewOptionsStore(def CacheOptions, entries map[string]CacheOptions) *OptionsStore {
	if entries == nil {
		entries = make(map[string]CacheOptions)
	}
	return &OptionsStore{Default: def, Entries: entries}
}

// LoadOptionsStore reads an OptionsStore from YAML:
//
//	default:
//	  expires_in: 5m
//	entries:
//	  dao_article_get_options:
//	    expires_in: 1h
func LoadOptionsStore(r io.Reader) (*OptionsStore, error) {
	var s OptionsStore
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("adm: failed to parse cache options: %w", err)
	}
	if s.Entries == nil {
		s.Entries = make(map[string]CacheOptions)
	}
	return &s, nil
}

// Has reports whether name has an entry.
func (s *OptionsStore) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Entries[name]
	return ok
}

// Get returns the default options merged with the entry for name.
func (s *OptionsStore) Get(name string) CacheOptions {
	if s == nil {
		return CacheOptions{}
	}
	return s.Default.Merge(s.Entries[name])
}

// FirstOptions returns the options of the first name that has an entry,
// or the default options when none does.
func (s *OptionsStore) FirstOptions(names ...string) CacheOptions {
	for _, n := range names {
		if s.Has(n) {
			return s.Get(n)
		}
	}
	if s == nil {
		return CacheOptions{}
	}
	return s.Default
}

// Codec turns cache values into bytes and back.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// JSONCodec encodes cache values as JSON, keeping object key order.
type JSONCodec struct{}

// Ensure interface compliance at compile time
var _ Codec = JSONCodec{}

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// Encode marshals v.
func (JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("adm: failed to encode cache value: %w", err)
	}
	return data, nil
}

// Decode unmarshals data into Objects, slices and scalars.
func (JSONCodec) Decode(data []byte) (any, error) {
	return DecodeJSON(data)
}
