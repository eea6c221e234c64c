package adm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArticleDAO(t *testing.T, g Gateway, cache *CacheService) (*DAO, *Registry) {
	t.Helper()
	r := NewRegistry()
	RegisterDefaults(r, g, cache)
	return NewDAO("article", newArticle, WithLocator(r)), r
}

func TestRESTPaths(t *testing.T) {
	p := RESTPaths{Name: "article"}

	assert.Equal(t, "/article/a1", p.Get("a1"))
	assert.Equal(t, "/article/a%2F1", p.Get("a/1"))
	assert.Equal(t, "/article/a1/full", p.GetFull("a1"))
	assert.Equal(t, "/article?ids=a1,a2", p.GetSome([]string{"a1", "a2"}))
	assert.Equal(t, "/article/search", p.Search())
}

func TestDAOFind(t *testing.T) {
	ctx := context.Background()

	t.Run("builds a model bound to the dao", func(t *testing.T) {
		g := newStubGateway(t).on("GET", "/article/a1", `{"id":"a1","title":"Hello"}`)
		dao, _ := newArticleDAO(t, g, nil)

		m, err := dao.Find(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "a1", m.PrimaryKey())
		assert.Same(t, dao, m.(*article).DAO())
		assert.False(t, m.IsFullMode())
	})

	t.Run("missing model", func(t *testing.T) {
		dao, _ := newArticleDAO(t, newStubGateway(t), nil)

		_, err := dao.Find(ctx, "zz")
		assert.True(t, IsNotFound(err))

		m, err := dao.Get(ctx, "zz")
		assert.NoError(t, err)
		assert.Nil(t, m)

		m, err = dao.GetOrNull(ctx, "zz")
		assert.NoError(t, err)
		assert.True(t, m.IsNil())
	})

	t.Run("other errors are not swallowed by Get", func(t *testing.T) {
		g := GatewayFunc(func(context.Context, string, string, ...RequestOption) (any, error) {
			return nil, &GatewayError{Kind: ErrServerError, Status: 500}
		})
		dao, _ := newArticleDAO(t, g, nil)

		_, err := dao.Get(ctx, "a1")
		assert.True(t, errors.Is(err, ErrServerError))
	})

	t.Run("cached response skips the gateway", func(t *testing.T) {
		g := newStubGateway(t).on("GET", "/article/a1", `{"id":"a1","title":"Hello"}`)
		cache := NewCacheService(newFakeCache(), WithCachePrefix("app"))
		dao, _ := newArticleDAO(t, g, cache)

		first, err := dao.Find(ctx, "a1")
		require.NoError(t, err)
		second, err := dao.Find(ctx, "a1")
		require.NoError(t, err)

		assert.Equal(t, 1, g.callCount())
		assert.NotSame(t, first, second)
		assert.Equal(t, first.DataHash(), second.DataHash())
	})

	t.Run("cached not found is replayed", func(t *testing.T) {
		g := newStubGateway(t)
		cache := NewCacheService(newFakeCache(), WithCachePrefix("app"))
		dao, _ := newArticleDAO(t, g, cache)

		_, err := dao.Find(ctx, "zz")
		require.True(t, IsNotFound(err))
		_, err = dao.Find(ctx, "zz")
		assert.True(t, IsNotFound(err))
		assert.Equal(t, 1, g.callCount())
	})
}

func TestDAOIdentityMap(t *testing.T) {
	ctx := context.Background()
	g := newStubGateway(t).
		on("GET", "/article/a1", `{"id":"a1","title":"Hello"}`).
		on("GET", "/article?ids=a2", `[{"id":"a2"}]`)

	dao, r := newArticleDAO(t, g, nil)
	r.Set("article_dao", dao)
	im := r.WithIdentityMap()

	scoped, err := Resolve[*DAO](im, "article_dao")
	require.NoError(t, err)
	assert.NotSame(t, dao, scoped)
	assert.Same(t, im, scoped.Locator())

	first, err := scoped.Find(ctx, "a1")
	require.NoError(t, err)
	second, err := scoped.Find(ctx, "a1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, g.callCount())

	models, err := scoped.GetSome(ctx, []string{"a2", "a1"})
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "a2", models[0].PrimaryKey())
	assert.Same(t, first, models[1])
	assert.Equal(t, []string{"GET /article/a1", "GET /article?ids=a2"}, g.calls)

	// the shared dao is not bound to the map
	_, err = dao.Find(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 3, g.callCount())
}

func TestDAOGetSome(t *testing.T) {
	ctx := context.Background()

	t.Run("result follows requested order and drops missing", func(t *testing.T) {
		g := newStubGateway(t).on("GET", "/article?ids=a3,a1,a9",
			`[{"id":"a1"},{"id":"a3"}]`)
		dao, _ := newArticleDAO(t, g, nil)

		models, err := dao.GetSome(ctx, []string{"a3", "a1", "a9"})
		require.NoError(t, err)
		require.Len(t, models, 2)
		assert.Equal(t, "a3", models[0].PrimaryKey())
		assert.Equal(t, "a1", models[1].PrimaryKey())
	})

	t.Run("not found is an empty list", func(t *testing.T) {
		dao, _ := newArticleDAO(t, newStubGateway(t), nil)

		models, err := dao.GetSome(ctx, []string{"a1"})
		require.NoError(t, err)
		assert.Empty(t, models)
	})

	t.Run("unlisted models come first", func(t *testing.T) {
		models := []Model{
			newArticle(ObjectOf("id", "b")),
			newArticle(ObjectOf("id", "x")),
			newArticle(ObjectOf("id", "a")),
		}
		sortByPrimaryKeys(models, []string{"a", "b"})

		assert.Equal(t, "x", models[0].PrimaryKey())
		assert.Equal(t, "a", models[1].PrimaryKey())
		assert.Equal(t, "b", models[2].PrimaryKey())
	})
}

func TestDAOGetFull(t *testing.T) {
	ctx := context.Background()
	fullBody := `{"id":"a1","title":"Hello","body":"Long text","_timestamp":"t2"}`

	t.Run("reloads the given model", func(t *testing.T) {
		g := newStubGateway(t).on("GET", "/article/a1/full", fullBody)
		dao, _ := newArticleDAO(t, g, nil)
		m := newArticle(ObjectOf("id", "a1", "title", "Hello"))

		got, err := dao.GetFull(ctx, "a1", m)
		require.NoError(t, err)
		assert.Same(t, m, got)
		assert.True(t, m.IsFullMode())
		v, _ := m.(*article).Attribute("body")
		assert.Equal(t, "Long text", v)
	})

	t.Run("builds the model when none given", func(t *testing.T) {
		g := newStubGateway(t).on("GET", "/article/a1/full", fullBody)
		dao, _ := newArticleDAO(t, g, nil)

		m, err := dao.GetFull(ctx, "a1", nil)
		require.NoError(t, err)
		assert.Equal(t, "a1", m.PrimaryKey())
		assert.Equal(t, "t2", m.Timestamp())
	})

	t.Run("model without timestamp is cached under both keys", func(t *testing.T) {
		g := newStubGateway(t).on("GET", "/article/a1/full", fullBody)
		fc := newFakeCache()
		dao, _ := newArticleDAO(t, g, NewCacheService(fc, WithCachePrefix("app")))

		_, err := dao.GetFull(ctx, "a1", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"app__dao_get_full_no_time/article/a1/",
			"app__dao_get_full/article/a1/t2",
		}, fc.writes)
	})

	t.Run("lazy attribute reads go through GetFull", func(t *testing.T) {
		g := newStubGateway(t).
			on("GET", "/article/a1", `{"id":"a1","title":"Hello"}`).
			on("GET", "/article/a1/full", fullBody).
			on("GET", "/partial_fields/article", `["id","title","_timestamp"]`)
		dao, _ := newArticleDAO(t, g, nil)

		m, err := dao.Find(ctx, "a1")
		require.NoError(t, err)

		title, err := m.Get(ctx, "title")
		require.NoError(t, err)
		assert.Equal(t, "Hello", title)

		body, err := m.Get(ctx, "body")
		require.NoError(t, err)
		assert.Equal(t, "Long text", body)
		assert.True(t, m.IsFullMode())

		author, err := m.Get(ctx, "author")
		require.NoError(t, err)
		assert.Nil(t, author)
		assert.Equal(t, []string{
			"GET /article/a1",
			"GET /partial_fields/article",
			"GET /article/a1/full",
		}, g.calls)
	})

	t.Run("missing full document fails the attribute read", func(t *testing.T) {
		g := newStubGateway(t).
			on("GET", "/article/a9", `{"id":"a9","title":"Gone"}`).
			on("GET", "/partial_fields/article", `["id","title","_timestamp"]`)
		dao, _ := newArticleDAO(t, g, nil)

		m, err := dao.Find(ctx, "a9")
		require.NoError(t, err)

		_, err = m.Get(ctx, "body")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.False(t, m.IsFullMode())
		assert.True(t, m.(*article).IsPartialMode())

		title, err := m.Get(ctx, "title")
		require.NoError(t, err)
		assert.Equal(t, "Gone", title)
	})

	t.Run("reload of a nil model", func(t *testing.T) {
		dao, _ := newArticleDAO(t, newStubGateway(t), nil)

		assert.True(t, errors.Is(dao.Reload(ctx, NewNullModel("article")), ErrNilModel))
		assert.True(t, errors.Is(dao.Reload(ctx, newArticle(nil)), ErrNoPrimaryKey))
	})
}

func TestDAOSearch(t *testing.T) {
	ctx := context.Background()
	g := newStubGateway(t).on("POST", "/article/search", `{
		"hits": {"total": 3, "max_score": 2.0, "hits": [
			{"_id": "a1", "_score": 2.0, "_source": {"id": "a1", "title": "One"}}
		]},
		"aggregations": {"category": {"buckets": [{"key": "market", "doc_count": 3}]}}
	}`)
	dao, _ := newArticleDAO(t, g, nil)

	c, err := dao.Search(ctx, ObjectOf("query", ObjectOf("match_all", NewObject())), 0, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(3), c.Total())
	assert.Equal(t, 3, c.TotalPages())
	require.Equal(t, 1, c.Len())
	assert.Same(t, dao, c.Results()[0].(*article).DAO())

	agg, ok := c.Aggregation("category").(*Aggregation)
	require.True(t, ok)
	assert.Equal(t, []string{"market"}, bucketNames(agg.Buckets()))

	body := g.bodies[0].(*Object)
	assert.Equal(t, []string{"query", "from", "size"}, body.Keys())
	assert.Equal(t, int64(1), body.Value("size"))
}

func TestDAOAggregationsFactoryFallback(t *testing.T) {
	t.Run("registered factory is used", func(t *testing.T) {
		dao, r := newArticleDAO(t, newStubGateway(t), nil)
		f, err := Resolve[*AggregationsFactory](r, ServiceAggregationsFactory)
		require.NoError(t, err)
		assert.Same(t, f, dao.aggregationsFactory())
	})

	t.Run("wrong type is logged", func(t *testing.T) {
		logs := &recordingLogger{}
		r := NewRegistry()
		r.Set(ServiceAggregationsFactory, "not a factory")
		dao := NewDAO("article", newArticle, WithLocator(r), WithDAOLogger(logs))

		assert.NotNil(t, dao.aggregationsFactory())
		assert.Equal(t, []string{"Aggregations factory unavailable, using defaults"}, logs.warn)
	})

	t.Run("missing factory is logged", func(t *testing.T) {
		logs := &recordingLogger{}
		dao := NewDAO("article", newArticle, WithLocator(NewRegistry()), WithDAOLogger(logs))

		assert.NotNil(t, dao.aggregationsFactory())
		assert.Contains(t, logs.debug, "No aggregations factory registered, using defaults")
		assert.Empty(t, logs.warn)
	})
}

func TestDAOWithoutGateway(t *testing.T) {
	dao := NewDAO("article", newArticle, WithLocator(NewRegistry()))

	_, err := dao.Find(context.Background(), "a1")
	assert.True(t, errors.Is(err, ErrLoaderNotFound))
}
