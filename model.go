package adm

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Meta attributes carried by every search document.
const (
	AttrTimestamp = "_timestamp"
	AttrScore     = "_score"
	AttrType      = "_type"
	AttrIndex     = "_index"
	AttrID        = "_id"
)

// DefaultAttributes are declared on every model.
var DefaultAttributes = []string{AttrTimestamp, AttrScore, AttrType, AttrIndex, AttrID}

// PrimaryKeyed identifies a model within its DAO.
type PrimaryKeyed interface {
	DAOName() string
	PrimaryKey() string
}

// Timestamped exposes the model version timestamp.
type Timestamped interface {
	Timestamp() any
}

// PartialLoadable is the partial/full mode state machine.
type PartialLoadable interface {
	// Get returns an attribute, reloading the model when the attribute
	// is missing and may only be present in full mode.
	Get(ctx context.Context, name string) (any, error)
	ReloadWith(data *Object) Model
	IsFullMode() bool
	MarkFullMode()
	MarkPartialMode()
	BindDAO(dao ModelDAO)
}

// DataHasher returns a plain data projection.
type DataHasher interface {
	DataHash() map[string]any
}

// Model is a domain object loaded from the data layer.
type Model interface {
	PrimaryKeyed
	Timestamped
	CacheKeyer
	PartialLoadable
	DataHasher
	IsNil() bool
}

// ModelDAO is what a model needs from its DAO.
type ModelDAO interface {
	Name() string
	PartialModeFields(ctx context.Context) ([]string, error)
	Reload(ctx context.Context, m Model) error
}

// ModelFactory builds a model from a data object.
type ModelFactory func(data *Object) Model

// Schema declares a model type.
type Schema struct {
	DAOName    string
	PrimaryKey string
	Attributes []string

	// AlwaysPartial lists attributes that never trigger a reload.
	// Nil means DefaultAttributes.
	AlwaysPartial []string

	// DefaultFullMode is the mode of models never explicitly marked.
	DefaultFullMode bool
}

func (s Schema) declared() []string {
	out := make([]string, 0, len(DefaultAttributes)+len(s.Attributes))
	seen := make(map[string]bool, cap(out))
	for _, a := range append(append([]string{}, DefaultAttributes...), s.Attributes...) {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func (s Schema) alwaysPartial() []string {
	if s.AlwaysPartial == nil {
		return DefaultAttributes
	}
	return s.AlwaysPartial
}

// BaseModel implements Model. Concrete models embed it and call Init:
//
//	type Article struct{ adm.BaseModel }
//
//	func NewArticle(data *adm.Object) adm.Model {
//	    a := &Article{}
//	    a.Init(a, articleSchema, data)
//	    return a
//	}
type BaseModel struct {
	self     Model
	schema   Schema
	declared map[string]bool
	attrs    *Object

	fullMode      *bool
	forcedPartial []string
	dao           ModelDAO
}

// Ensure interface compliance at compile time
var _ Model = (*BaseModel)(nil)

// NewBaseModel creates a standalone model.
func NewBaseModel(schema Schema, data *Object) *BaseModel {
	b := &BaseModel{}
	b.Init(b, schema, data)
	return b
}

// Init sets up the model. self is the outer model embedding b; it is what
// gets reloaded and registered.
func (b *BaseModel) Init(self Model, schema Schema, data *Object) {
	b.self = self
	b.schema = schema
	b.declared = make(map[string]bool)
	b.attrs = NewObject()
	for _, a := range schema.declared() {
		b.declared[a] = true
	}
	b.ReloadWith(data)
}

// Schema returns the model schema.
func (b *BaseModel) Schema() Schema {
	return b.schema
}

// DAOName returns the name of the owning DAO.
func (b *BaseModel) DAOName() string {
	return b.schema.DAOName
}

// PrimaryKey returns the primary key attribute rendered as a string.
func (b *BaseModel) PrimaryKey() string {
	if b.schema.PrimaryKey == "" {
		return ""
	}
	return toString(b.attrs.Value(b.schema.PrimaryKey))
}

// SetPrimaryKey sets the primary key attribute.
func (b *BaseModel) SetPrimaryKey(pk string) {
	if b.schema.PrimaryKey != "" {
		b.attrs.Set(b.schema.PrimaryKey, pk)
	}
}

// Timestamp returns the _timestamp attribute without triggering a reload.
func (b *BaseModel) Timestamp() any {
	return b.attrs.Value(AttrTimestamp)
}

// CacheKey returns "<dao>/<pk>/<timestamp>".
func (b *BaseModel) CacheKey() string {
	return fmt.Sprintf("%s/%s/%s", b.DAOName(), b.PrimaryKey(), toString(b.Timestamp()))
}

// Attribute returns the stored value without triggering a reload.
func (b *BaseModel) Attribute(name string) (any, bool) {
	return b.attrs.Get(name)
}

// Get returns the named attribute. A nil value in partial mode triggers a
// full reload unless the attribute is always partial or listed among the
// partial mode fields.
func (b *BaseModel) Get(ctx context.Context, name string) (any, error) {
	if !b.declared[name] {
		return nil, fmt.Errorf("%w: %q on %s", ErrUnknownAttribute, name, b.DAOName())
	}
	if v := b.attrs.Value(name); v != nil {
		return v, nil
	}
	if b.IsFullMode() {
		return nil, nil
	}

	partial, err := b.isPartialField(ctx, name)
	if err != nil {
		return nil, err
	}
	if partial {
		return nil, nil
	}

	if err := b.ReloadModel(ctx); err != nil {
		return nil, err
	}
	return b.attrs.Value(name), nil
}

func (b *BaseModel) isPartialField(ctx context.Context, name string) (bool, error) {
	if contains(b.schema.alwaysPartial(), name) {
		return true, nil
	}
	fields, err := b.PartialModeFields(ctx)
	if err != nil {
		return false, err
	}
	return contains(fields, name), nil
}

// PartialModeFields returns the forced list if set, otherwise the DAO's.
func (b *BaseModel) PartialModeFields(ctx context.Context) ([]string, error) {
	if b.forcedPartial != nil {
		return b.forcedPartial, nil
	}
	if b.dao == nil {
		return nil, nil
	}
	return b.dao.PartialModeFields(ctx)
}

// ForcePartialFields makes this instance treat fields as its partial mode
// fields instead of asking the DAO.
func (b *BaseModel) ForcePartialFields(fields ...string) {
	b.forcedPartial = append([]string{}, fields...)
}

// ClearForcedPartialFields reverts to the DAO's partial mode fields.
func (b *BaseModel) ClearForcedPartialFields() {
	b.forcedPartial = nil
}

// ReloadWith merges declared attributes from data into the model.
func (b *BaseModel) ReloadWith(data *Object) Model {
	data.Range(func(k string, v any) bool {
		if b.declared[k] {
			b.attrs.Set(k, v)
		}
		return true
	})
	return b.self
}

// ReloadModel reloads the whole model through its DAO.
func (b *BaseModel) ReloadModel(ctx context.Context) error {
	if b.dao == nil {
		return fmt.Errorf("%w: %s/%s", ErrNoDAO, b.DAOName(), b.PrimaryKey())
	}
	return b.dao.Reload(ctx, b.self)
}

// IsFullMode reports whether the model holds its full data.
func (b *BaseModel) IsFullMode() bool {
	if b.fullMode == nil {
		return b.schema.DefaultFullMode
	}
	return *b.fullMode
}

// IsPartialMode is the negation of IsFullMode.
func (b *BaseModel) IsPartialMode() bool {
	return !b.IsFullMode()
}

// MarkFullMode flags the model as fully loaded.
func (b *BaseModel) MarkFullMode() {
	full := true
	b.fullMode = &full
}

// MarkPartialMode flags the model as partially loaded.
func (b *BaseModel) MarkPartialMode() {
	full := false
	b.fullMode = &full
}

// BindDAO sets the DAO used for reloads.
func (b *BaseModel) BindDAO(dao ModelDAO) {
	b.dao = dao
}

// DAO returns the bound DAO.
func (b *BaseModel) DAO() ModelDAO {
	return b.dao
}

// DataHash returns every declared attribute with its stored value.
func (b *BaseModel) DataHash() map[string]any {
	out := make(map[string]any, len(b.declared))
	for a := range b.declared {
		out[a] = Plain(b.attrs.Value(a))
	}
	return out
}

// CompactDataHash is DataHash without nil values.
func (b *BaseModel) CompactDataHash() map[string]any {
	out := b.DataHash()
	for k, v := range out {
		if v == nil {
			delete(out, k)
		}
	}
	return out
}

// IsNil returns false.
func (b *BaseModel) IsNil() bool {
	return false
}

// String renders the model for logs.
func (b *BaseModel) String() string {
	keys := make([]string, 0, len(b.declared))
	for a := range b.declared {
		keys = append(keys, a)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "#<%s", b.DAOName())
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, b.attrs.Value(k))
	}
	sb.WriteString(">")
	return sb.String()
}

// Attr returns the named attribute converted to T. Numbers are converted
// between int, int64 and float64.
func Attr[T any](ctx context.Context, m Model, name string) (T, error) {
	var zero T
	v, err := m.Get(ctx, name)
	if err != nil || v == nil {
		return zero, err
	}

	var out any
	switch any(zero).(type) {
	case int64:
		if i, ok := toInt64(v); ok {
			out = i
		}
	case int:
		if i, ok := toInt64(v); ok {
			out = int(i)
		}
	case float64:
		if f, ok := toFloat64(v); ok {
			out = f
		}
	case string:
		out = toString(v)
	default:
		out = v
	}

	t, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("%w: attribute %q is %T", ErrUnexpectedType, name, v)
	}
	return t, nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
