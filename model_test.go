package adm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseModel(t *testing.T) {
	ctx := context.Background()

	t.Run("stores declared attributes only", func(t *testing.T) {
		m := newArticle(ObjectOf("id", "a1", "title", "Hello", "unknown", "x", "_score", 1.5))
		a := m.(*article)

		v, ok := a.Attribute("title")
		assert.True(t, ok)
		assert.Equal(t, "Hello", v)
		_, ok = a.Attribute("unknown")
		assert.False(t, ok)
		v, _ = a.Attribute("_score")
		assert.Equal(t, 1.5, v)
	})

	t.Run("primary key and cache key", func(t *testing.T) {
		m := newArticle(ObjectOf("id", int64(7), "_timestamp", "2024-01-01"))

		assert.Equal(t, "article", m.DAOName())
		assert.Equal(t, "7", m.PrimaryKey())
		assert.Equal(t, "article/7/2024-01-01", m.CacheKey())
	})

	t.Run("cache key without timestamp ends with a slash", func(t *testing.T) {
		m := newArticle(ObjectOf("id", "a1"))
		assert.Equal(t, "article/a1/", m.CacheKey())
	})

	t.Run("ReloadWith returns the outer model", func(t *testing.T) {
		m := newArticle(ObjectOf("id", "a1"))
		got := m.ReloadWith(ObjectOf("title", "New"))

		assert.Same(t, m, got)
		v, _ := m.(*article).Attribute("title")
		assert.Equal(t, "New", v)
	})

	t.Run("undeclared attribute is an error", func(t *testing.T) {
		m := newArticle(ObjectOf("id", "a1"))
		_, err := m.Get(ctx, "nope")
		assert.True(t, errors.Is(err, ErrUnknownAttribute))
	})

	t.Run("mode defaults to the schema and follows marks", func(t *testing.T) {
		m := newArticle(nil).(*article)
		assert.False(t, m.IsFullMode())
		assert.True(t, m.IsPartialMode())

		m.MarkFullMode()
		assert.True(t, m.IsFullMode())
		m.MarkPartialMode()
		assert.False(t, m.IsFullMode())

		full := NewBaseModel(Schema{DAOName: "x", DefaultFullMode: true}, nil)
		assert.True(t, full.IsFullMode())
	})

	t.Run("data hash lists every declared attribute", func(t *testing.T) {
		m := newArticle(ObjectOf("id", "a1", "title", "T"))

		h := m.DataHash()
		assert.Equal(t, "a1", h["id"])
		assert.Equal(t, "T", h["title"])
		assert.Contains(t, h, "body")
		assert.Nil(t, h["body"])
		assert.Contains(t, h, AttrTimestamp)

		compact := m.(*article).CompactDataHash()
		assert.Equal(t, map[string]any{"id": "a1", "title": "T"}, compact)
	})

	t.Run("String lists attributes", func(t *testing.T) {
		m := newArticle(ObjectOf("id", "a1"))
		assert.Contains(t, m.(*article).String(), "#<article")
		assert.Contains(t, m.(*article).String(), "id=a1")
	})
}

func TestPartialModeReload(t *testing.T) {
	ctx := context.Background()
	full := ObjectOf("id", "a1", "title", "T", "body", "Full body", "author", "Ann")

	newPartial := func(dao *fixedFieldsDAO) *article {
		m := newArticle(ObjectOf("id", "a1", "title", "T")).(*article)
		m.BindDAO(dao)
		return m
	}

	t.Run("present value never reloads", func(t *testing.T) {
		dao := &fixedFieldsDAO{fields: []string{"id", "title"}, full: full}
		m := newPartial(dao)

		v, err := m.Get(ctx, "title")
		require.NoError(t, err)
		assert.Equal(t, "T", v)
		assert.Zero(t, dao.reloads)
	})

	t.Run("missing full mode field reloads once", func(t *testing.T) {
		dao := &fixedFieldsDAO{fields: []string{"id", "title"}, full: full}
		m := newPartial(dao)

		v, err := m.Get(ctx, "body")
		require.NoError(t, err)
		assert.Equal(t, "Full body", v)
		assert.Equal(t, 1, dao.reloads)
		assert.True(t, m.IsFullMode())

		v, err = m.Get(ctx, "author")
		require.NoError(t, err)
		assert.Equal(t, "Ann", v)
		assert.Equal(t, 1, dao.reloads)
	})

	t.Run("missing partial field does not reload", func(t *testing.T) {
		dao := &fixedFieldsDAO{fields: []string{"id", "title", "category"}, full: full}
		m := newPartial(dao)

		v, err := m.Get(ctx, "category")
		require.NoError(t, err)
		assert.Nil(t, v)
		assert.Zero(t, dao.reloads)
	})

	t.Run("always partial attributes do not reload", func(t *testing.T) {
		dao := &fixedFieldsDAO{full: full}
		m := newPartial(dao)

		v, err := m.Get(ctx, AttrScore)
		require.NoError(t, err)
		assert.Nil(t, v)
		assert.Zero(t, dao.reloads)
	})

	t.Run("full mode returns nil without reloading", func(t *testing.T) {
		dao := &fixedFieldsDAO{full: full}
		m := newPartial(dao)
		m.MarkFullMode()

		v, err := m.Get(ctx, "body")
		require.NoError(t, err)
		assert.Nil(t, v)
		assert.Zero(t, dao.reloads)
	})

	t.Run("forced partial fields override the dao", func(t *testing.T) {
		dao := &fixedFieldsDAO{fields: []string{"id"}, full: full}
		m := newPartial(dao)
		m.ForcePartialFields("body")

		v, err := m.Get(ctx, "body")
		require.NoError(t, err)
		assert.Nil(t, v)
		assert.Zero(t, dao.reloads)

		m.ClearForcedPartialFields()
		v, err = m.Get(ctx, "body")
		require.NoError(t, err)
		assert.Equal(t, "Full body", v)
		assert.Equal(t, 1, dao.reloads)
	})

	t.Run("failed reload keeps the model partial", func(t *testing.T) {
		dao := &fixedFieldsDAO{fields: []string{"id", "title"}, reloadErr: NewNotFoundError("GET", "/article/a1/full")}
		m := newPartial(dao)
		m.MarkPartialMode()

		_, err := m.Get(ctx, "body")
		assert.True(t, IsNotFound(err))
		assert.False(t, m.IsFullMode())
		assert.Equal(t, 1, dao.reloads)
	})

	t.Run("reload without dao is an error", func(t *testing.T) {
		m := newArticle(ObjectOf("id", "a1")).(*article)

		_, err := m.Get(ctx, "body")
		assert.True(t, errors.Is(err, ErrNoDAO))
	})
}

func TestAttr(t *testing.T) {
	ctx := context.Background()
	schema := Schema{DAOName: "yacht", PrimaryKey: "id", Attributes: []string{"id", "length", "name"}}
	m := NewBaseModel(schema, ObjectOf("id", int64(3), "length", int64(42), "name", "Blue"))
	m.MarkFullMode()

	length, err := Attr[float64](ctx, m, "length")
	require.NoError(t, err)
	assert.Equal(t, 42.0, length)

	id, err := Attr[string](ctx, m, "id")
	require.NoError(t, err)
	assert.Equal(t, "3", id)

	n, err := Attr[int](ctx, m, "length")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Attr[int64](ctx, m, "name")
	assert.True(t, errors.Is(err, ErrUnexpectedType))
}

func TestNullModel(t *testing.T) {
	n := NewNullModel("article")

	assert.True(t, n.IsNil())
	assert.Equal(t, "article", n.DAOName())
	assert.Empty(t, n.PrimaryKey())
	v, err := n.Get(context.Background(), "title")
	assert.NoError(t, err)
	assert.Nil(t, v)
	assert.Same(t, n, n.ReloadWith(ObjectOf("title", "x")))
}
