package adm

import (
	"context"
	"strings"
)

// Cache key names used by the read adaptors.
const (
	KeyDAOGet           = "dao_get"
	KeyDAOGetFull       = "dao_get_full"
	KeyDAOGetFullNoTime = "dao_get_full_no_time"
)

// CacheKeyer is implemented by values that supply their own cache key.
type CacheKeyer interface {
	CacheKey() string
}

// CacheService builds cache keys and options and creates the cached action
// adaptors used by DAOs. A nil *CacheService, or one without a Cache,
// behaves as a disabled cache.
type CacheService struct {
	cache   Cache
	prefix  string
	options *OptionsStore
	logger  Logger
}

// CacheServiceOption configures a CacheService.
type CacheServiceOption func(*CacheService)

// WithCachePrefix sets the application prefix of every key.
func WithCachePrefix(prefix string) CacheServiceOption {
	return func(s *CacheService) {
		s.prefix = prefix
	}
}

// WithOptionsStore sets the named cache options.
func WithOptionsStore(store *OptionsStore) CacheServiceOption {
	return func(s *CacheService) {
		s.options = store
	}
}

// WithCacheLogger sets the logger handed to adaptors.
func WithCacheLogger(l Logger) CacheServiceOption {
	return func(s *CacheService) {
		s.logger = l
	}
}

// NewCacheService creates a CacheService on top of cache.
func NewCacheService(cache Cache, opts ...CacheServiceOption) *CacheService {
	s := &CacheService{
		cache:   cache,
		options: NewOptionsStore(CacheOptions{}, nil),
		logger:  &noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = loggerOrNoop(s.logger)
	return s
}

// Cache returns the underlying cache, or nil.
func (s *CacheService) Cache() Cache {
	if s == nil {
		return nil
	}
	return s.cache
}

// Prefix returns the key prefix.
func (s *CacheService) Prefix() string {
	if s == nil {
		return ""
	}
	return s.prefix
}

// Key builds "<prefix>__<name>/<arg>/<arg>". Args implementing CacheKeyer
// contribute their CacheKey; string slices are joined with ",".
func (s *CacheService) Key(name string, args ...any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, keyPart(a))
	}

	var b strings.Builder
	b.WriteString(s.Prefix())
	b.WriteString("__")
	b.WriteString(name)
	if len(parts) > 0 {
		b.WriteByte('/')
		b.WriteString(strings.Join(parts, "/"))
	}
	return b.String()
}

func keyPart(a any) string {
	switch t := a.(type) {
	case CacheKeyer:
		return t.CacheKey()
	case []string:
		return strings.Join(t, ",")
	case []any:
		s := make([]string, len(t))
		for i, e := range t {
			s[i] = keyPart(e)
		}
		return strings.Join(s, ",")
	default:
		return toString(a)
	}
}

// Pattern builds the glob matching keys under this prefix that contain p.
func (s *CacheService) Pattern(p string) string {
	if p == "" {
		return "*" + s.Prefix() + "*"
	}
	return "*" + s.Prefix() + "*" + p + "*"
}

// Expire deletes every cached entry matching Pattern(pattern).
func (s *CacheService) Expire(ctx context.Context, pattern string) (int, error) {
	if s.Cache() == nil {
		return 0, nil
	}
	n, err := s.cache.DeleteMatched(ctx, s.Pattern(pattern))
	if err != nil {
		return n, err
	}
	s.logger.Info("Expired cache entries", "pattern", s.Pattern(pattern), "count", n)
	return n, nil
}

// Options returns the named options merged over the defaults.
func (s *CacheService) Options(name string) CacheOptions {
	if s == nil {
		return CacheOptions{}
	}
	return s.options.Get(name)
}

// FirstOptions returns the options of the first configured name, or the defaults.
func (s *CacheService) FirstOptions(names ...string) CacheOptions {
	if s == nil {
		return CacheOptions{}
	}
	return s.options.FirstOptions(names...)
}

func (s *CacheService) adaptorLogger() Logger {
	if s == nil {
		return &noopLogger{}
	}
	return s.logger
}

// GetAdaptor creates the adaptor caching a single-model lookup.
func (s *CacheService) GetAdaptor(daoName string, pk any) *CachedActionAdaptor {
	return s.adaptor(&getKeySource{service: s, daoName: daoName, pk: pk})
}

// GetSomeAdaptor creates the adaptor caching a multi-model lookup.
func (s *CacheService) GetSomeAdaptor(daoName string, pks []string) *CachedActionAdaptor {
	return s.adaptor(&getSomeKeySource{service: s, daoName: daoName, pks: pks})
}

// GetFullAdaptor creates the adaptor caching the full reload of model.
func (s *CacheService) GetFullAdaptor(daoName string, model FullCacheable) *CachedActionAdaptor {
	return s.adaptor(&getFullKeySource{service: s, daoName: daoName, model: model})
}

// adaptor returns a disabled adaptor when there is no cache.
func (s *CacheService) adaptor(source keySource) *CachedActionAdaptor {
	a := newCachedActionAdaptor(s.Cache(), s.adaptorLogger(), source)
	if s.Cache() == nil {
		a.Disable()
	}
	return a
}
