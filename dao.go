package adm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// PathsFactory builds the data layer paths of one DAO.
type PathsFactory interface {
	Get(pk string) string
	GetFull(pk string) string
	GetSome(pks []string) string
	Search() string
}

// RESTPaths is the default PathsFactory:
//
//	/<name>/<pk>
//	/<name>/<pk>/full
//	/<name>?ids=<pk>,<pk>
//	/<name>/search
type RESTPaths struct {
	Name string
}

// Ensure interface compliance at compile time
var (
	_ PathsFactory     = RESTPaths{}
	_ ModelDAO         = (*DAO)(nil)
	_ RegistryBindable = (*DAO)(nil)
)

func (p RESTPaths) Get(pk string) string {
	return "/" + p.Name + "/" + url.PathEscape(pk)
}

func (p RESTPaths) GetFull(pk string) string {
	return p.Get(pk) + "/full"
}

func (p RESTPaths) GetSome(pks []string) string {
	escaped := make([]string, len(pks))
	for i, pk := range pks {
		escaped[i] = url.QueryEscape(pk)
	}
	return "/" + p.Name + "?ids=" + strings.Join(escaped, ",")
}

func (p RESTPaths) Search() string {
	return "/" + p.Name + "/search"
}

// DAO loads models of one type through a Gateway.
//
// Services that are not given explicitly (gateway, cache service, model
// fields, aggregations factory) are resolved from the DAO's Locator, which
// defaults to Default(). Resolving a DAO through an IdentityMap rebinds it
// so loaded models are registered in that map and served from it.
type DAO struct {
	name    string
	factory ModelFactory
	paths   PathsFactory
	tag     string

	gateway Gateway
	cache   *CacheService
	locator Locator
	logger  Logger
}

// DAOOption configures a DAO.
type DAOOption func(*DAO)

// WithGateway sets the gateway instead of resolving it.
func WithGateway(g Gateway) DAOOption {
	return func(d *DAO) {
		d.gateway = g
	}
}

// WithPaths sets the paths factory.
func WithPaths(p PathsFactory) DAOOption {
	return func(d *DAO) {
		d.paths = p
	}
}

// WithLocator sets the locator services and models are resolved from.
func WithLocator(l Locator) DAOOption {
	return func(d *DAO) {
		d.locator = l
	}
}

// WithCacheService sets the cache service instead of resolving it.
func WithCacheService(s *CacheService) DAOOption {
	return func(d *DAO) {
		d.cache = s
	}
}

// WithSearchTag selects the aggregation loaders used by Search.
func WithSearchTag(tag string) DAOOption {
	return func(d *DAO) {
		d.tag = tag
	}
}

// WithDAOLogger sets the logger.
func WithDAOLogger(l Logger) DAOOption {
	return func(d *DAO) {
		d.logger = l
	}
}

// NewDAO creates a DAO named name building models with factory.
func NewDAO(name string, factory ModelFactory, opts ...DAOOption) *DAO {
	d := &DAO{
		name:    name,
		factory: factory,
		paths:   RESTPaths{Name: name},
		logger:  &noopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = loggerOrNoop(d.logger)
	return d
}

// Name returns the DAO name.
func (d *DAO) Name() string {
	return d.name
}

// Locator returns the locator in use.
func (d *DAO) Locator() Locator {
	if d.locator == nil {
		return Default()
	}
	return d.locator
}

// WithRegistry returns a copy of d resolving through l.
func (d *DAO) WithRegistry(l Locator) any {
	c := *d
	c.locator = l
	return &c
}

func (d *DAO) resolveGateway() (Gateway, error) {
	if d.gateway != nil {
		return d.gateway, nil
	}
	return Resolve[Gateway](d.Locator(), ServiceGateway)
}

func (d *DAO) cacheService() *CacheService {
	if d.cache != nil {
		return d.cache
	}
	l := d.Locator()
	if !l.Has(ServiceCacheService) {
		return nil
	}
	s, err := Resolve[*CacheService](l, ServiceCacheService)
	if err != nil {
		d.logger.Warn("Cache service unavailable", "dao", d.name, "error", err)
		return nil
	}
	return s
}

func (d *DAO) aggregationsFactory() *AggregationsFactory {
	l := d.Locator()
	if !l.Has(ServiceAggregationsFactory) {
		d.logger.Debug("No aggregations factory registered, using defaults", "dao", d.name)
		return NewAggregationsFactory()
	}
	f, err := Resolve[*AggregationsFactory](l, ServiceAggregationsFactory)
	if err != nil {
		d.logger.Warn("Aggregations factory unavailable, using defaults", "dao", d.name, "error", err)
		return NewAggregationsFactory()
	}
	return f
}

// PartialModeFields returns the fields present on models loaded in partial
// mode, as published by the data layer.
func (d *DAO) PartialModeFields(ctx context.Context) ([]string, error) {
	l := d.Locator()
	if !l.Has(ServiceModelFields) {
		return nil, nil
	}
	fields, err := Resolve[*ModelFieldsDAO](l, ServiceModelFields)
	if err != nil {
		return nil, err
	}
	return fields.PartialFields(ctx, d.name)
}

// buildModel is the factory handed to response adaptors.
func (d *DAO) buildModel(data *Object) Model {
	m := d.factory(data)
	m.BindDAO(d)
	d.Locator().RegisterModel(m)
	return m
}

func (d *DAO) get(ctx context.Context, path string, opts ...RequestOption) (any, error) {
	g, err := d.resolveGateway()
	if err != nil {
		return nil, fmt.Errorf("adm: dao %s has no gateway: %w", d.name, err)
	}
	return g.Perform(ctx, http.MethodGet, path, opts...)
}

// Find loads the model with pk, returning an error matching ErrNotFound
// when it does not exist.
func (d *DAO) Find(ctx context.Context, pk string) (Model, error) {
	if m := d.Locator().GetModel(d.name, pk); m != nil {
		d.logger.Debug("Model served from identity map", "dao", d.name, "pk", pk)
		return m, nil
	}

	v, err := d.get(ctx, d.paths.Get(pk),
		WithCacheAdaptor(d.cacheService().GetAdaptor(d.name, pk)),
		WithResponseAdaptor(SingleAdaptor(d.buildModel)),
	)
	if err != nil {
		return nil, err
	}
	return asModel(v)
}

// Get is Find returning nil instead of a not-found error.
func (d *DAO) Get(ctx context.Context, pk string) (Model, error) {
	m, err := d.Find(ctx, pk)
	if IsNotFound(err) {
		return nil, nil
	}
	return m, err
}

// GetOrNull is Get returning a NullModel instead of nil.
func (d *DAO) GetOrNull(ctx context.Context, pk string) (Model, error) {
	m, err := d.Get(ctx, pk)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return NewNullModel(d.name), nil
	}
	return m, nil
}

// GetFull loads the full data of the model with pk into m and marks it as
// full mode. When m is nil a new model is built.
func (d *DAO) GetFull(ctx context.Context, pk string, m Model) (Model, error) {
	if m == nil {
		m = d.factory(NewObject())
		setter, ok := m.(interface{ SetPrimaryKey(string) })
		if !ok {
			return nil, fmt.Errorf("%w: %s models cannot be built from a primary key", ErrNoPrimaryKey, d.name)
		}
		setter.SetPrimaryKey(pk)
	}
	m.BindDAO(d)

	_, err := d.get(ctx, d.paths.GetFull(pk),
		WithCacheAdaptor(d.cacheService().GetFullAdaptor(d.name, m)),
		WithResponseAdaptor(ReloadAdaptor(m)),
	)
	if err != nil {
		return nil, err
	}

	m.MarkFullMode()
	d.Locator().RegisterModel(m)
	return m, nil
}

// Reload loads the full data of m.
func (d *DAO) Reload(ctx context.Context, m Model) error {
	if m == nil || m.IsNil() {
		return ErrNilModel
	}
	pk := m.PrimaryKey()
	if pk == "" {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKey, d.name)
	}
	_, err := d.GetFull(ctx, pk, m)
	return err
}

// GetSome loads the models with the given pks. Models already in the
// identity map are not requested again. Missing models are dropped and the
// result follows the order of pks.
func (d *DAO) GetSome(ctx context.Context, pks []string) ([]Model, error) {
	l := d.Locator()
	models := make([]Model, 0, len(pks))
	var missing []string
	for _, pk := range pks {
		if m := l.GetModel(d.name, pk); m != nil {
			models = append(models, m)
		} else {
			missing = append(missing, pk)
		}
	}

	if len(missing) > 0 {
		v, err := d.get(ctx, d.paths.GetSome(missing),
			WithCacheAdaptor(d.cacheService().GetSomeAdaptor(d.name, missing)),
			WithResponseAdaptor(SomeAdaptor(d.buildModel)),
		)
		switch {
		case IsNotFound(err):
		case err != nil:
			return nil, err
		default:
			fetched, ok := v.([]Model)
			if !ok {
				return nil, fmt.Errorf("%w: expected []Model, got %T", ErrUnexpectedType, v)
			}
			models = append(models, fetched...)
		}
	}

	sortByPrimaryKeys(models, pks)
	return models, nil
}

// sortByPrimaryKeys orders models as pks. Models whose key is not listed
// come first.
func sortByPrimaryKeys(models []Model, pks []string) {
	index := make(map[string]int, len(pks))
	for i, pk := range pks {
		if _, ok := index[pk]; !ok {
			index[pk] = i
		}
	}
	rank := func(m Model) int {
		if i, ok := index[m.PrimaryKey()]; ok {
			return i
		}
		return -1
	}
	sort.SliceStable(models, func(i, j int) bool {
		return rank(models[i]) < rank(models[j])
	})
}

// Search posts query to the search path and returns one page of results.
func (d *DAO) Search(ctx context.Context, query *Object, from, size int) (*EsCollection, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	body := query.Clone().
		Set("from", int64(from)).
		Set("size", int64(size))

	g, err := d.resolveGateway()
	if err != nil {
		return nil, fmt.Errorf("adm: dao %s has no gateway: %w", d.name, err)
	}
	v, err := g.Perform(ctx, http.MethodPost, d.paths.Search(),
		WithBody(body),
		WithResponseAdaptor(CollectionAdaptor(d.buildModel,
			WithFrom(from),
			WithSize(size),
			WithAggregationsFactory(d.aggregationsFactory()),
			WithCollectionTag(d.tag),
		)),
	)
	if err != nil {
		return nil, err
	}
	c, ok := v.(*EsCollection)
	if !ok {
		return nil, fmt.Errorf("%w: expected *EsCollection, got %T", ErrUnexpectedType, v)
	}
	return c, nil
}

func asModel(v any) (Model, error) {
	m, ok := v.(Model)
	if !ok {
		return nil, fmt.Errorf("%w: expected a model, got %T", ErrUnexpectedType, v)
	}
	return m, nil
}
