package adm

import (
	"sort"
	"strings"
	"sync"
)

// AggregationResult is a built aggregation: either a bucket *Aggregation
// or a *MetricAggregation.
type AggregationResult interface {
	AggregationName() string
	IsMetric() bool
	// CalculateFiltered marks the buckets whose names appear in values.
	CalculateFiltered(values []string) AggregationResult
	DataHash() map[string]any
}

// Ensure interface compliance at compile time
var (
	_ AggregationResult = (*Aggregation)(nil)
	_ AggregationResult = (*MetricAggregation)(nil)
)

// Bucket is one grouping of a bucket aggregation.
type Bucket struct {
	// AggregationName is the name of the owning aggregation.
	AggregationName string

	// Name is the bucket key rendered as a string.
	Name string

	// Key is the raw bucket key as received (string, int64, float64 or nil).
	Key any

	Count        int64
	Aggregations []AggregationResult

	// Filtered is set by CalculateFiltered.
	Filtered bool

	counted bool
}

// NewBucket creates a bucket with a known count.
func NewBucket(aggregationName string, key any, count int64, nested ...AggregationResult) *Bucket {
	return &Bucket{
		AggregationName: aggregationName,
		Name:            toString(key),
		Key:             key,
		Count:           count,
		Aggregations:    nested,
		counted:         true,
	}
}

// HasCount reports whether the raw bucket carried a count.
func (b *Bucket) HasCount() bool {
	return b.counted
}

// IsEmpty reports whether the bucket count is zero.
// A bucket without a count is not empty.
func (b *Bucket) IsEmpty() bool {
	return b.counted && b.Count == 0
}

// Aggregation returns the nested aggregation with the given name.
func (b *Bucket) Aggregation(name string) AggregationResult {
	return FindAggregation(b.Aggregations, name)
}

// DataHash returns the bucket as plain data.
func (b *Bucket) DataHash() map[string]any {
	h := map[string]any{"name": b.Name, "count": nil}
	if b.counted {
		h["count"] = b.Count
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

// Aggregation is a bucket aggregation.
//
// Buckets keep their source order unless the aggregation was created with
// a priority list, in which case the order is computed on first access and
// reused afterwards.
type Aggregation struct {
	Name string

	buckets  []*Bucket
	priority []string

	sortOnce sync.Once
	sorted   []*Bucket
}

// NewAggregation creates a bucket aggregation.
func NewAggregation(name string, buckets []*Bucket) *Aggregation {
	if buckets == nil {
		buckets = []*Bucket{}
	}
	return &Aggregation{Name: name, buckets: buckets}
}

// NewSortedAggregation creates a bucket aggregation whose buckets are
// ordered by priority: buckets named in the list come first, in list order;
// the rest keep their source order. Names are compared trimmed and
// case-insensitively.
func NewSortedAggregation(name string, buckets []*Bucket, priority []string) *Aggregation {
	a := NewAggregation(name, buckets)
	a.priority = make([]string, len(priority))
	for i, p := range priority {
		a.priority[i] = normaliseBucketName(p)
	}
	return a
}

// AggregationName returns the aggregation name.
func (a *Aggregation) AggregationName() string {
	return a.Name
}

// IsMetric returns false.
func (a *Aggregation) IsMetric() bool {
	return false
}

// Buckets returns the buckets in presentation order.
// The returned slice is shared and must not be modified.
func (a *Aggregation) Buckets() []*Bucket {
	if a.priority == nil {
		return a.buckets
	}
	a.sortOnce.Do(a.sortBuckets)
	return a.sorted
}

func (a *Aggregation) sortBuckets() {
	rank := make(map[string]int, len(a.priority))
	for i, p := range a.priority {
		if _, dup := rank[p]; !dup {
			rank[p] = i
		}
	}
	rankOf := func(b *Bucket) int {
		if r, ok := rank[normaliseBucketName(b.Name)]; ok {
			return r
		}
		return len(a.priority)
	}

	sorted := make([]*Bucket, len(a.buckets))
	copy(sorted, a.buckets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rankOf(sorted[i]) < rankOf(sorted[j])
	})
	a.sorted = sorted
}

func normaliseBucketName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Len returns the number of buckets.
func (a *Aggregation) Len() int {
	return len(a.buckets)
}

// IsEmpty reports whether the aggregation has no buckets.
func (a *Aggregation) IsEmpty() bool {
	return len(a.buckets) == 0
}

// Bucket returns the bucket with the given name, or nil.
func (a *Aggregation) Bucket(name string) *Bucket {
	for _, b := range a.buckets {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// NonEmptyBuckets returns the buckets whose count is not zero.
func (a *Aggregation) NonEmptyBuckets() []*Bucket {
	return a.selectBuckets(func(b *Bucket) bool { return !b.IsEmpty() })
}

// FilteredBuckets returns the buckets marked by CalculateFiltered.
func (a *Aggregation) FilteredBuckets() []*Bucket {
	return a.selectBuckets(func(b *Bucket) bool { return b.Filtered })
}

// UnfilteredBuckets returns the buckets not marked by CalculateFiltered.
func (a *Aggregation) UnfilteredBuckets() []*Bucket {
	return a.selectBuckets(func(b *Bucket) bool { return !b.Filtered })
}

// FilteredFirstBuckets returns the filtered buckets followed by the rest.
func (a *Aggregation) FilteredFirstBuckets() []*Bucket {
	return append(a.FilteredBuckets(), a.UnfilteredBuckets()...)
}

func (a *Aggregation) selectBuckets(keep func(*Bucket) bool) []*Bucket {
	out := make([]*Bucket, 0, len(a.buckets))
	for _, b := range a.Buckets() {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// CalculateFiltered marks each bucket whose name is in values and
// classifies nested aggregations with the same values.
func (a *Aggregation) CalculateFiltered(values []string) AggregationResult {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	for _, b := range a.buckets {
		_, b.Filtered = set[b.Name]
		for _, nested := range b.Aggregations {
			nested.CalculateFiltered(values)
		}
	}
	return a
}

// DataHash returns the aggregation as plain data.
func (a *Aggregation) DataHash() map[string]any {
	buckets := a.Buckets()
	out := make([]any, len(buckets))
	for i, b := range buckets {
		out[i] = b.DataHash()
	}
	return map[string]any{"name": a.Name, "buckets": out}
}

// MetricAggregation is a scalar aggregation such as an average or a sum.
type MetricAggregation struct {
	Name  string
	Value any
}

// NewMetricAggregation creates a metric aggregation.
func NewMetricAggregation(name string, value any) *MetricAggregation {
	return &MetricAggregation{Name: name, Value: value}
}

// AggregationName returns the aggregation name.
func (m *MetricAggregation) AggregationName() string {
	return m.Name
}

// IsMetric returns true.
func (m *MetricAggregation) IsMetric() bool {
	return true
}

// Float64 returns the value as a float64 if it is numeric.
func (m *MetricAggregation) Float64() (float64, bool) {
	return toFloat64(m.Value)
}

// CalculateFiltered is a no-op.
func (m *MetricAggregation) CalculateFiltered([]string) AggregationResult {
	return m
}

// DataHash returns the aggregation as plain data.
func (m *MetricAggregation) DataHash() map[string]any {
	return map[string]any{"name": m.Name, "value": m.Value}
}

// FindAggregation returns the aggregation named name in list, or nil.
func FindAggregation(list []AggregationResult, name string) AggregationResult {
	for _, a := range list {
		if a.AggregationName() == name {
			return a
		}
	}
	return nil
}
