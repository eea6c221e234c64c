package adm

import (
	"fmt"
	"sync"
)

// Well-known registry keys.
const (
	ServiceAggregationsFactory = "aggregations_factory"
	ServiceGateway             = "gateway"
	ServiceModelFields         = "model_fields"
	ServiceCacheService        = "cache_service"
)

// Loader produces a registry value.
type Loader func() (any, error)

// Locator resolves services and tracks live models.
// Registry and IdentityMap both implement it.
type Locator interface {
	Get(key string) (any, error)
	Has(key string) bool

	RegisterModel(m Model)
	UnloadModel(m Model)
	GetModel(daoName, pk string) Model
}

// RegistryBindable is implemented by services that keep a reference to the
// Locator they were resolved from. WithRegistry returns a copy bound to l;
// the shared instance is left untouched.
type RegistryBindable interface {
	WithRegistry(l Locator) any
}

// Ensure interface compliance at compile time
var (
	_ Locator = (*Registry)(nil)
	_ Locator = (*IdentityMap)(nil)
)

// Registry is a keyed service locator.
//
// A key resolves to a stored value first, then to a persistent loader whose
// result is stored, then to a transient loader called on every Get.
// Resolving a key with none of these returns a LoaderNotFoundError.
type Registry struct {
	// persistentMu guards repository and persistent.
	persistentMu sync.Mutex
	repository   map[string]any
	persistent   map[string]Loader

	transientMu sync.Mutex
	transient   map[string]Loader

	logger Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used by the registry and its identity maps.
func WithRegistryLogger(l Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		repository: make(map[string]any),
		persistent: make(map[string]Loader),
		transient:  make(map[string]Loader),
		logger:     &noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = loggerOrNoop(r.logger)
	return r
}

// Set stores value under key.
func (r *Registry) Set(key string, value any) {
	r.persistentMu.Lock()
	defer r.persistentMu.Unlock()
	r.repository[key] = value
}

// SetPersistentLoader registers a loader whose result is stored on first use.
// Re-registering replaces the loader but not an already stored value.
func (r *Registry) SetPersistentLoader(key string, loader Loader) error {
	if loader == nil {
		return fmt.Errorf("%w: key %q", ErrNilLoader, key)
	}
	r.persistentMu.Lock()
	defer r.persistentMu.Unlock()
	r.persistent[key] = loader
	return nil
}

// SetTransientLoader registers a loader called on every Get.
func (r *Registry) SetTransientLoader(key string, loader Loader) error {
	if loader == nil {
		return fmt.Errorf("%w: key %q", ErrNilLoader, key)
	}
	r.transientMu.Lock()
	defer r.transientMu.Unlock()
	r.transient[key] = loader
	return nil
}

// Has reports whether key can be resolved.
func (r *Registry) Has(key string) bool {
	r.persistentMu.Lock()
	_, stored := r.repository[key]
	_, persistent := r.persistent[key]
	r.persistentMu.Unlock()
	if stored || persistent {
		return true
	}

	r.transientMu.Lock()
	defer r.transientMu.Unlock()
	_, transient := r.transient[key]
	return transient
}

// Get resolves key.
func (r *Registry) Get(key string) (any, error) {
	r.persistentMu.Lock()
	if v, ok := r.repository[key]; ok {
		r.persistentMu.Unlock()
		return v, nil
	}
	persistent := r.persistent[key]
	r.persistentMu.Unlock()

	if persistent != nil {
		return r.loadPersistent(key, persistent)
	}

	r.transientMu.Lock()
	transient := r.transient[key]
	r.transientMu.Unlock()

	if transient != nil {
		return transient()
	}
	return nil, NewLoaderNotFoundError(key)
}

// loadPersistent runs the loader outside the lock. When two callers race,
// the first stored value wins and both receive it.
func (r *Registry) loadPersistent(key string, loader Loader) (any, error) {
	v, err := loader()
	if err != nil {
		return nil, fmt.Errorf("adm: failed to load %q: %w", key, err)
	}

	r.persistentMu.Lock()
	defer r.persistentMu.Unlock()
	if existing, ok := r.repository[key]; ok {
		return existing, nil
	}
	r.repository[key] = v
	return v, nil
}

// WithIdentityMap creates an identity map backed by this registry.
func (r *Registry) WithIdentityMap() *IdentityMap {
	return NewIdentityMap(r)
}

// RegisterModel does nothing; use an IdentityMap to track models.
func (r *Registry) RegisterModel(Model) {}

// UnloadModel does nothing.
func (r *Registry) UnloadModel(Model) {}

// GetModel always returns nil.
func (r *Registry) GetModel(string, string) Model { return nil }

// Resolve gets key from l and asserts its type.
func Resolve[T any](l Locator, key string) (T, error) {
	var zero T
	v, err := l.Get(key)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T", ErrUnexpectedType, key, v)
	}
	return t, nil
}

// RegisterDefaults wires the standard services: the gateway, the cache
// service (when not nil), an aggregations factory and the model fields DAO.
func RegisterDefaults(r *Registry, gateway Gateway, cache *CacheService) {
	r.Set(ServiceGateway, gateway)
	if cache != nil {
		r.Set(ServiceCacheService, cache)
	}
	_ = r.SetPersistentLoader(ServiceAggregationsFactory, func() (any, error) {
		return NewAggregationsFactory(), nil
	})
	_ = r.SetPersistentLoader(ServiceModelFields, func() (any, error) {
		g, err := Resolve[Gateway](r, ServiceGateway)
		if err != nil {
			return nil, err
		}
		return NewModelFieldsDAO(g), nil
	})
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating an empty one on first
// use. Prefer passing a Registry explicitly; this exists for the
// application's composition root.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// SetDefault replaces the process-wide registry.
func SetDefault(r *Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = r
}
