package adm

import (
	"context"
	"fmt"
)

// Status tags of cached entries.
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
)

// ComputeFunc produces the value to cache.
type ComputeFunc func(ctx context.Context) (any, error)

// FullCacheable is what GetFull caching needs from a model.
type FullCacheable interface {
	CacheKey() string
	Timestamp() any
}

// keySource supplies the key and options of one cached operation.
type keySource interface {
	cacheKey() string
	cacheOptions() CacheOptions
}

// writeHook lets a key source react after an entry has been written.
type writeHook interface {
	afterWrite(ctx context.Context, a *CachedActionAdaptor, entry []any)
}

// CachedActionAdaptor serves one read operation from the cache or computes
// and stores it.
//
// Entries are stored as a two element list: [StatusOK, result] or
// [StatusNotFound, message]. A cached not-found is replayed as an error
// matching ErrNotFound. Values that do not have this shape are returned as
// they are.
//
// An adaptor wraps a single invocation and is not safe for concurrent use.
type CachedActionAdaptor struct {
	cache   Cache
	logger  Logger
	source  keySource
	enabled bool

	loaded  bool
	key     string
	options CacheOptions
}

func newCachedActionAdaptor(cache Cache, logger Logger, source keySource) *CachedActionAdaptor {
	return &CachedActionAdaptor{
		cache:   cache,
		logger:  loggerOrNoop(logger),
		source:  source,
		enabled: true,
	}
}

// NewCachedActionAdaptor creates an adaptor with an explicit key and options.
func NewCachedActionAdaptor(cache Cache, key string, opts CacheOptions, logger Logger) *CachedActionAdaptor {
	return newCachedActionAdaptor(cache, logger, staticKeySource{key: key, options: opts})
}

// Enabled reports whether the cache is consulted.
func (a *CachedActionAdaptor) Enabled() bool {
	return a.enabled
}

// Enable turns caching on.
func (a *CachedActionAdaptor) Enable() {
	a.enabled = true
}

// Disable turns caching off; Fetch then always computes and never writes.
func (a *CachedActionAdaptor) Disable() {
	a.enabled = false
}

// CacheKey returns the key, computing it once.
func (a *CachedActionAdaptor) CacheKey() string {
	a.load()
	return a.key
}

// CacheOptions returns the options, computing them once.
func (a *CachedActionAdaptor) CacheOptions() CacheOptions {
	a.load()
	return a.options
}

func (a *CachedActionAdaptor) load() {
	if a.loaded {
		return
	}
	a.key = a.source.cacheKey()
	a.options = a.source.cacheOptions()
	a.loaded = true
}

func (a *CachedActionAdaptor) reset() {
	a.loaded = false
	a.key = ""
	a.options = CacheOptions{}
}

// Cached reports whether an entry exists. It is false when disabled.
// Cache errors are logged and reported as a miss.
func (a *CachedActionAdaptor) Cached(ctx context.Context) bool {
	if !a.enabled {
		return false
	}

	a.logger.Debug("EXIST CACHE", "key", a.CacheKey())
	if a.cache == nil {
		return false
	}

	ok, err := a.cache.Exist(ctx, a.CacheKey(), a.CacheOptions())
	if err != nil {
		a.logger.Warn("Cache exist check failed", "key", a.CacheKey(), "error", err)
		return false
	}
	return ok
}

// Fetch returns the cached result when present, otherwise calls compute and
// caches its outcome. A not-found error from compute is cached and returned.
func (a *CachedActionAdaptor) Fetch(ctx context.Context, compute ComputeFunc) (any, error) {
	if a.Cached(ctx) {
		if v, ok, err := a.cachedResult(ctx); ok {
			return v, err
		}
	}
	if compute == nil {
		return nil, nil
	}
	return a.perform(ctx, compute)
}

// cachedResult reads and decodes the entry. ok is false when the read failed
// and the caller should compute instead.
func (a *CachedActionAdaptor) cachedResult(ctx context.Context) (any, bool, error) {
	a.logger.Debug("READ CACHE", "key", a.CacheKey())

	v, found, err := a.cache.Read(ctx, a.CacheKey(), a.CacheOptions())
	if err != nil {
		a.logger.Warn("Cache read failed", "key", a.CacheKey(), "error", err)
		return nil, false, nil
	}
	if !found || isBlank(v) {
		return nil, true, nil
	}

	status, result, tagged := decodeEntry(v)
	if !tagged {
		return v, true, nil
	}
	if status == StatusNotFound {
		return nil, true, replayedNotFound(toString(result))
	}
	return result, true, nil
}

func decodeEntry(v any) (string, any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		return "", nil, false
	}
	status, ok := list[0].(string)
	if !ok || (status != StatusOK && status != StatusNotFound) {
		return "", nil, false
	}
	return status, list[1], true
}

func (a *CachedActionAdaptor) perform(ctx context.Context, compute ComputeFunc) (any, error) {
	if !a.enabled {
		return compute(ctx)
	}

	result, err := compute(ctx)
	if err != nil {
		if IsNotFound(err) {
			a.cacheResult(ctx, []any{StatusNotFound, notFoundMessage(err)})
		}
		return nil, err
	}

	a.cacheResult(ctx, []any{StatusOK, result})
	return result, nil
}

func (a *CachedActionAdaptor) cacheResult(ctx context.Context, entry []any) {
	a.write(ctx, entry)
	if hook, ok := a.source.(writeHook); ok {
		hook.afterWrite(ctx, a, entry)
	}
}

func (a *CachedActionAdaptor) write(ctx context.Context, entry []any) {
	a.logger.Debug("WRITE CACHE", "key", a.CacheKey())
	if a.cache == nil {
		return
	}
	if err := a.cache.Write(ctx, a.CacheKey(), entry, a.CacheOptions()); err != nil {
		a.logger.Warn("Cache write failed", "key", a.CacheKey(), "error", err)
	}
}

type staticKeySource struct {
	key     string
	options CacheOptions
}

func (s staticKeySource) cacheKey() string           { return s.key }
func (s staticKeySource) cacheOptions() CacheOptions { return s.options }

// getKeySource: dao_get/<dao>/<pk>
type getKeySource struct {
	service *CacheService
	daoName string
	pk      any
}

func (s *getKeySource) cacheKey() string {
	return s.service.Key(KeyDAOGet, s.daoName, s.pk)
}

func (s *getKeySource) cacheOptions() CacheOptions {
	return s.service.FirstOptions(
		fmt.Sprintf("dao_%s_get_options", s.daoName),
		fmt.Sprintf("dao_%s_options", s.daoName),
		"dao_get_options",
	)
}

// getSomeKeySource: dao_get/<dao>/<pk,pk,...> in the requested order
type getSomeKeySource struct {
	service *CacheService
	daoName string
	pks     []string
}

func (s *getSomeKeySource) cacheKey() string {
	return s.service.Key(KeyDAOGet, s.daoName, s.pks)
}

func (s *getSomeKeySource) cacheOptions() CacheOptions {
	return s.service.FirstOptions(
		fmt.Sprintf("dao_%s_get_some_options", s.daoName),
		fmt.Sprintf("dao_%s_options", s.daoName),
		"dao_get_some_options",
	)
}

// getFullKeySource keys full reloads by the model cache key, which embeds the
// timestamp. Models without a timestamp use a separate key and option chain,
// and are written again under the timestamped key once the reload has
// provided one.
type getFullKeySource struct {
	service *CacheService
	daoName string
	model   FullCacheable

	noTimestamp *bool
}

func (s *getFullKeySource) noTimestampMode() bool {
	if s.noTimestamp == nil {
		blank := isBlank(s.model.Timestamp())
		s.noTimestamp = &blank
	}
	return *s.noTimestamp
}

func (s *getFullKeySource) cacheKey() string {
	if s.noTimestampMode() {
		return s.service.Key(KeyDAOGetFullNoTime, s.model)
	}
	return s.service.Key(KeyDAOGetFull, s.model)
}

func (s *getFullKeySource) cacheOptions() CacheOptions {
	if s.noTimestampMode() {
		return s.service.FirstOptions(
			fmt.Sprintf("dao_%s_get_full_options", s.daoName),
			fmt.Sprintf("dao_%s_get_full_no_time_options", s.daoName),
			"dao_get_full_no_time_options",
			fmt.Sprintf("dao_%s_options", s.daoName),
			"dao_get_full_options",
		)
	}
	return s.service.FirstOptions(
		fmt.Sprintf("dao_%s_get_full_options", s.daoName),
		fmt.Sprintf("dao_%s_options", s.daoName),
		"dao_get_full_options",
	)
}

func (s *getFullKeySource) afterWrite(ctx context.Context, a *CachedActionAdaptor, entry []any) {
	if !s.noTimestampMode() {
		return
	}

	s.noTimestamp = nil
	a.reset()
	if s.noTimestampMode() {
		a.logger.Warn("No timestamp on GetFull after reloading cache key", "dao", s.daoName, "key", a.CacheKey())
		return
	}
	a.write(ctx, entry)
}
