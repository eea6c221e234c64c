package adm

import (
	"sync"
)

// DefaultPageSize is the page size of collections created without WithSize.
const DefaultPageSize = 10

// EsCollection is a page of search results.
//
// It wraps the raw response: hits become models through the model factory
// and the aggregations section is built through an AggregationsFactory.
// Both are computed once on first access.
type EsCollection struct {
	factory  ModelFactory
	response *Object
	from     int
	size     int

	aggFactory *AggregationsFactory
	tag        string

	aggOnce      sync.Once
	aggregations []AggregationResult

	resultsOnce sync.Once
	results     []Model
}

// EsCollectionOption configures an EsCollection.
type EsCollectionOption func(*EsCollection)

// WithFrom sets the requested offset.
func WithFrom(from int) EsCollectionOption {
	return func(c *EsCollection) {
		c.from = from
	}
}

// WithSize sets the requested page size.
func WithSize(size int) EsCollectionOption {
	return func(c *EsCollection) {
		c.size = size
	}
}

// WithAggregationsFactory sets the factory used to build aggregations.
func WithAggregationsFactory(f *AggregationsFactory) EsCollectionOption {
	return func(c *EsCollection) {
		c.aggFactory = f
	}
}

// WithCollectionTag selects the loaders registered under tag.
func WithCollectionTag(tag string) EsCollectionOption {
	return func(c *EsCollection) {
		c.tag = tag
	}
}

// NewEsCollection wraps a search response.
func NewEsCollection(factory ModelFactory, response *Object, opts ...EsCollectionOption) *EsCollection {
	c := &EsCollection{
		factory:  factory,
		response: response,
		size:     DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.response == nil {
		c.response = NewObject()
	}
	if c.aggFactory == nil {
		c.aggFactory = NewAggregationsFactory()
	}
	return c
}

// FromResults builds a collection around models already loaded. The total
// is the number of models.
func FromResults(results []Model, opts ...EsCollectionOption) *EsCollection {
	response := ObjectOf("hits", ObjectOf(
		"total", int64(len(results)),
		"hits", []any{},
	))
	c := NewEsCollection(nil, response, opts...)
	c.resultsOnce.Do(func() {
		c.results = append([]Model{}, results...)
	})
	return c
}

// Response returns the raw response.
func (c *EsCollection) Response() *Object {
	return c.response
}

// From returns the requested offset.
func (c *EsCollection) From() int {
	return c.from
}

// Size returns the requested page size.
func (c *EsCollection) Size() int {
	return c.size
}

// Tag returns the aggregation loader tag.
func (c *EsCollection) Tag() string {
	return c.tag
}

func (c *EsCollection) hits() *Object {
	h, _ := c.response.Value("hits").(*Object)
	return h
}

// Total returns the number of documents matching the query. Both the plain
// number and the {"value": n} form are accepted.
func (c *EsCollection) Total() int64 {
	raw := c.hits().Value("total")
	if o, ok := raw.(*Object); ok {
		raw = o.Value("value")
	}
	n, _ := toInt64(raw)
	return n
}

// MaxScore returns the best score of the query.
func (c *EsCollection) MaxScore() float64 {
	f, _ := toFloat64(c.hits().Value("max_score"))
	return f
}

// Hits returns the raw hit documents.
func (c *EsCollection) Hits() []any {
	h, _ := c.hits().Value("hits").([]any)
	return h
}

// Aggregations returns the built aggregations of the response.
func (c *EsCollection) Aggregations() []AggregationResult {
	c.aggOnce.Do(func() {
		c.aggregations = c.aggFactory.BuildAllFromRawData(c.response.Value("aggregations"), c.tag)
	})
	return c.aggregations
}

// Aggregation returns the named aggregation, or nil.
func (c *EsCollection) Aggregation(name string) AggregationResult {
	return FindAggregation(c.Aggregations(), name)
}

// Results returns the models of this page.
func (c *EsCollection) Results() []Model {
	c.resultsOnce.Do(func() {
		hits := c.Hits()
		c.results = make([]Model, 0, len(hits))
		for _, h := range hits {
			doc, ok := h.(*Object)
			if !ok {
				continue
			}
			c.results = append(c.results, c.factory(documentInfo(doc)))
		}
	})
	return c.results
}

// documentInfo merges the hit meta fields into its source.
func documentInfo(doc *Object) *Object {
	source, _ := doc.Value("_source").(*Object)
	info := source.Clone()
	for _, k := range []string{AttrScore, AttrType, AttrIndex, AttrID} {
		info.Set(k, doc.Value(k))
	}
	return info
}

// Len returns the number of models on this page.
func (c *EsCollection) Len() int {
	return len(c.Results())
}

// Empty reports whether this page holds no models.
func (c *EsCollection) Empty() bool {
	return c.Len() == 0
}

// CurrentPage returns the 1-based page number.
func (c *EsCollection) CurrentPage() int {
	if c.size <= 0 {
		return 1
	}
	return c.from/c.size + 1
}

// TotalPages returns the number of pages needed for Total.
func (c *EsCollection) TotalPages() int {
	if c.size <= 0 {
		return 0
	}
	total := int(c.Total())
	return (total + c.size - 1) / c.size
}

// DataHash returns a plain projection of the page.
func (c *EsCollection) DataHash() map[string]any {
	aggs := make([]any, 0, len(c.Aggregations()))
	for _, a := range c.Aggregations() {
		aggs = append(aggs, a.DataHash())
	}
	hits := make([]any, 0, c.Len())
	for _, m := range c.Results() {
		hits = append(hits, m.DataHash())
	}
	return map[string]any{
		"limit_value":  c.size,
		"offset_value": c.from,
		"total":        c.Total(),
		"max_score":    Plain(c.hits().Value("max_score")),
		"aggregations": aggs,
		"hits":         hits,
	}
}
