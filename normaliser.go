package adm

// Keys recognised inside raw aggregation payloads.
const (
	rawBucketsKey      = "buckets"
	rawValueKey        = "value"
	rawKeyAsStringKey  = "key_as_string"
	rawKeyKey          = "key"
	rawNameKey         = "name"
	rawDocCountKey     = "doc_count"
	rawCountKey        = "count"
	rawAggregationsKey = "aggregations"
)

// AggregationDefinition is the normalised form of one aggregation.
//
// A bucket aggregation has a non-nil Buckets slice (possibly empty).
// A metric aggregation has HasValue set and nil Buckets.
type AggregationDefinition struct {
	Name     string
	Buckets  []BucketDefinition
	Value    any
	HasValue bool
}

// IsMetric reports whether the definition describes a scalar aggregation.
func (d AggregationDefinition) IsMetric() bool {
	return d.HasValue && d.Buckets == nil
}

// DataHash returns the definition as plain data.
func (d AggregationDefinition) DataHash() map[string]any {
	if d.IsMetric() {
		return map[string]any{"name": d.Name, "value": d.Value}
	}
	buckets := make([]any, len(d.Buckets))
	for i, b := range d.Buckets {
		buckets[i] = b.DataHash()
	}
	return map[string]any{"name": d.Name, "buckets": buckets}
}

// BucketDefinition is the normalised form of one bucket.
// Name and Count are nil when the raw bucket did not carry them.
type BucketDefinition struct {
	Name         any
	Count        *int64
	Aggregations []AggregationDefinition
}

// DataHash returns the bucket as plain data.
func (b BucketDefinition) DataHash() map[string]any {
	h := map[string]any{"name": b.Name, "count": nil}
	if b.Count != nil {
		h["count"] = *b.Count
	}
	if len(b.Aggregations) > 0 {
		nested := make([]any, len(b.Aggregations))
		for i, a := range b.Aggregations {
			nested[i] = a.DataHash()
		}
		h["aggregations"] = nested
	}
	return h
}

// Normalise converts a raw aggregations payload into a flat list of
// aggregation definitions.
//
// Accepted inputs:
//   - []AggregationDefinition is returned unchanged.
//   - []any is treated as an already normalised list of definition objects
//     ({name, buckets: [{name, count, aggregations}]} or {name, value}).
//   - *Object (or a plain map) is scanned recursively, in key order, for
//     bucket aggregations ({buckets: ...}), metric aggregations ({value: ...})
//     and implicit count groups ({x: {doc_count: N}, ...}). Descent stops at
//     the first matching node; sibling branches are still scanned.
//   - nil or an empty value yields an empty list.
//
// Missing bucket names or counts are carried through as nil.
func Normalise(raw any) []AggregationDefinition {
	switch t := raw.(type) {
	case []AggregationDefinition:
		return t
	case []any:
		return definitionsFromList(t)
	case map[string]any:
		return Normalise(FromValue(t))
	case *Object:
		out := make([]AggregationDefinition, 0)
		t.Range(func(key string, value any) bool {
			out = locateAggregations(key, value, out)
			return true
		})
		return out
	default:
		return []AggregationDefinition{}
	}
}

func locateAggregations(key string, value any, out []AggregationDefinition) []AggregationDefinition {
	switch v := value.(type) {
	case *Object:
		if v.Has(rawBucketsKey) {
			return append(out, bucketAggregation(key, v.Value(rawBucketsKey)))
		}
		if v.Has(rawValueKey) {
			return append(out, AggregationDefinition{Name: key, Value: v.Value(rawValueKey), HasValue: true})
		}
		if isImplicitCounts(v) {
			return append(out, implicitCountsAggregation(key, v))
		}
		v.Range(func(k string, nested any) bool {
			out = locateAggregations(k, nested, out)
			return true
		})
	case []any:
		for _, elem := range v {
			if obj, ok := elem.(*Object); ok {
				obj.Range(func(k string, nested any) bool {
					out = locateAggregations(k, nested, out)
					return true
				})
			}
		}
	}
	return out
}

func bucketAggregation(name string, raw any) AggregationDefinition {
	def := AggregationDefinition{Name: name, Buckets: make([]BucketDefinition, 0)}

	switch buckets := raw.(type) {
	case []any:
		for _, rb := range buckets {
			obj, _ := rb.(*Object)
			def.Buckets = append(def.Buckets, normaliseBucket(obj, nil))
		}
	case *Object:
		// keyed buckets: {"a": {doc_count: 1}, "b": {...}}
		buckets.Range(func(k string, rb any) bool {
			obj, _ := rb.(*Object)
			def.Buckets = append(def.Buckets, normaliseBucket(obj, k))
			return true
		})
	}
	return def
}

func normaliseBucket(raw *Object, fallbackName any) BucketDefinition {
	b := BucketDefinition{Name: firstPresent(raw, rawKeyAsStringKey, rawKeyKey, rawNameKey)}
	if b.Name == nil {
		b.Name = fallbackName
	}
	if c, ok := toInt64(firstPresent(raw, rawDocCountKey, rawCountKey)); ok {
		b.Count = &c
	}

	rest := raw.Without(rawKeyAsStringKey, rawKeyKey, rawNameKey, rawDocCountKey, rawCountKey)
	if nested := Normalise(rest); len(nested) > 0 {
		b.Aggregations = nested
	}
	return b
}

// isImplicitCounts matches {x: {doc_count: N}, y: {doc_count: M}}.
func isImplicitCounts(o *Object) bool {
	if o.Len() == 0 {
		return false
	}
	matches := true
	o.Range(func(_ string, v any) bool {
		inner, ok := v.(*Object)
		matches = ok && inner.Len() == 1 && inner.Has(rawDocCountKey)
		return matches
	})
	return matches
}

func implicitCountsAggregation(name string, o *Object) AggregationDefinition {
	def := AggregationDefinition{Name: name, Buckets: make([]BucketDefinition, 0, o.Len())}
	o.Range(func(k string, v any) bool {
		b := BucketDefinition{Name: k}
		if c, ok := toInt64(v.(*Object).Value(rawDocCountKey)); ok {
			b.Count = &c
		}
		def.Buckets = append(def.Buckets, b)
		return true
	})
	return def
}

func firstPresent(o *Object, keys ...string) any {
	for _, k := range keys {
		if v := o.Value(k); v != nil {
			return v
		}
	}
	return nil
}

// definitionsFromList reads an already normalised list.
func definitionsFromList(list []any) []AggregationDefinition {
	out := make([]AggregationDefinition, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case AggregationDefinition:
			out = append(out, t)
		case map[string]any:
			if obj, ok := FromValue(t).(*Object); ok {
				out = append(out, definitionFromObject(obj))
			}
		case *Object:
			out = append(out, definitionFromObject(t))
		}
	}
	return out
}

func definitionFromObject(o *Object) AggregationDefinition {
	def := AggregationDefinition{Name: toString(o.Value(rawNameKey))}
	if buckets, ok := o.Value(rawBucketsKey).([]any); ok {
		def.Buckets = make([]BucketDefinition, 0, len(buckets))
		for _, rb := range buckets {
			obj, _ := rb.(*Object)
			b := BucketDefinition{Name: obj.Value(rawNameKey)}
			if c, ok := toInt64(obj.Value(rawCountKey)); ok {
				b.Count = &c
			}
			if nested, ok := obj.Value(rawAggregationsKey).([]any); ok && len(nested) > 0 {
				b.Aggregations = definitionsFromList(nested)
			}
			def.Buckets = append(def.Buckets, b)
		}
		return def
	}
	if o.Has(rawValueKey) {
		def.Value = o.Value(rawValueKey)
		def.HasValue = true
		return def
	}
	def.Buckets = make([]BucketDefinition, 0)
	return def
}
