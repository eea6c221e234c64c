package adm

import (
	"fmt"
	"sync"
)

// DefaultCollectionTag is the tag under which global loaders are registered.
const DefaultCollectionTag = ""

// AggregationLoader builds a typed aggregation from a normalised definition.
// tag is the collection tag the build was requested for.
type AggregationLoader func(def AggregationDefinition, tag string) AggregationResult

// AggregationsFactory builds typed aggregations, routing each definition to
// a loader registered for its (collection tag, name) pair, then to a loader
// registered for (DefaultCollectionTag, name), then to the default builder.
type AggregationsFactory struct {
	mu      sync.RWMutex
	loaders map[string]map[string]AggregationLoader
}

// NewAggregationsFactory creates a factory with no custom loaders.
func NewAggregationsFactory() *AggregationsFactory {
	return &AggregationsFactory{
		loaders: make(map[string]map[string]AggregationLoader),
	}
}

// SetLoader registers loader for aggregations called name within tag,
// replacing any previous registration.
func (f *AggregationsFactory) SetLoader(name, tag string, loader AggregationLoader) error {
	if loader == nil {
		return fmt.Errorf("%w: aggregation %q", ErrNilLoader, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	byName, ok := f.loaders[tag]
	if !ok {
		byName = make(map[string]AggregationLoader)
		f.loaders[tag] = byName
	}
	byName[name] = loader
	return nil
}

// Loader returns the loader that would be used for name within tag.
func (f *AggregationsFactory) Loader(name, tag string) AggregationLoader {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if l, ok := f.loaders[tag][name]; ok {
		return l
	}
	if l, ok := f.loaders[DefaultCollectionTag][name]; ok {
		return l
	}
	return f.defaultLoader
}

func (f *AggregationsFactory) defaultLoader(def AggregationDefinition, tag string) AggregationResult {
	return AggregationBuilder{Factory: f, Tag: tag}.Build(def)
}

// BuildAllFromRawData normalises raw and builds every definition.
func (f *AggregationsFactory) BuildAllFromRawData(raw any, tag string) []AggregationResult {
	defs := Normalise(raw)
	out := make([]AggregationResult, 0, len(defs))
	for _, def := range defs {
		out = append(out, f.BuildFromDefinition(def, tag))
	}
	return out
}

// BuildFromDefinition builds one definition.
func (f *AggregationsFactory) BuildFromDefinition(def AggregationDefinition, tag string) AggregationResult {
	return f.Loader(def.Name, tag)(def, tag)
}

// SortedBucketsLoader returns a loader producing aggregations whose buckets
// are ordered by the given priority list (see NewSortedAggregation).
func (f *AggregationsFactory) SortedBucketsLoader(priority ...string) AggregationLoader {
	return func(def AggregationDefinition, tag string) AggregationResult {
		b := AggregationBuilder{Factory: f, Tag: tag}
		if def.IsMetric() {
			return b.Build(def)
		}
		return NewSortedAggregation(def.Name, b.BuildBuckets(def), priority)
	}
}

// AggregationBuilder is the default builder used when no loader is
// registered. Nested aggregations are built back through Factory so custom
// loaders apply at every depth.
type AggregationBuilder struct {
	Factory *AggregationsFactory
	Tag     string
}

// Build turns def into a *MetricAggregation or an *Aggregation.
func (b AggregationBuilder) Build(def AggregationDefinition) AggregationResult {
	if def.IsMetric() {
		return NewMetricAggregation(def.Name, def.Value)
	}
	return NewAggregation(def.Name, b.BuildBuckets(def))
}

// BuildBuckets builds the buckets of a bucket definition.
func (b AggregationBuilder) BuildBuckets(def AggregationDefinition) []*Bucket {
	buckets := make([]*Bucket, 0, len(def.Buckets))
	for _, bd := range def.Buckets {
		bucket := &Bucket{
			AggregationName: def.Name,
			Name:            toString(bd.Name),
			Key:             bd.Name,
		}
		if bd.Count != nil {
			bucket.Count = *bd.Count
			bucket.counted = true
		}
		for _, nested := range bd.Aggregations {
			bucket.Aggregations = append(bucket.Aggregations, b.Factory.BuildFromDefinition(nested, b.Tag))
		}
		buckets = append(buckets, bucket)
	}
	return buckets
}
