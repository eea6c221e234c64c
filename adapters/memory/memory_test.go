package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	none := adm.CacheOptions{}

	t.Run("write, exist and read", func(t *testing.T) {
		c := NewCache()

		ok, err := c.Exist(ctx, "k", none)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Write(ctx, "k", []any{"ok", "v"}, none))

		ok, err = c.Exist(ctx, "k", none)
		require.NoError(t, err)
		assert.True(t, ok)

		v, found, err := c.Read(ctx, "k", none)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []any{"ok", "v"}, v)
	})

	t.Run("entries expire", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		c := NewCache(WithClock(clock.Now))
		opts := adm.CacheOptions{ExpiresIn: time.Minute}

		require.NoError(t, c.Write(ctx, "k", "v", opts))
		clock.Advance(59 * time.Second)
		ok, _ := c.Exist(ctx, "k", opts)
		assert.True(t, ok)

		clock.Advance(time.Second)
		ok, _ = c.Exist(ctx, "k", opts)
		assert.False(t, ok)
		_, found, err := c.Read(ctx, "k", opts)
		require.NoError(t, err)
		assert.False(t, found)

		assert.Equal(t, 1, c.Prune())
		assert.Zero(t, c.Len())
	})

	t.Run("namespaces isolate keys", func(t *testing.T) {
		c := NewCache()
		require.NoError(t, c.Write(ctx, "k", "a", adm.CacheOptions{Namespace: "v1"}))

		ok, _ := c.Exist(ctx, "k", none)
		assert.False(t, ok)
		ok, _ = c.Exist(ctx, "k", adm.CacheOptions{Namespace: "v1"})
		assert.True(t, ok)
		assert.Equal(t, []string{"v1:k"}, c.Keys())
	})

	t.Run("delete matched", func(t *testing.T) {
		c := NewCache()
		for _, k := range []string{
			"app__dao_get/article/1",
			"app__dao_get/article/2",
			"app__dao_get/yacht/1",
			"other__dao_get/article/1",
		} {
			require.NoError(t, c.Write(ctx, k, "x", none))
		}

		n, err := c.DeleteMatched(ctx, "*app*article*")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		keys := c.Keys()
		sort.Strings(keys)
		assert.Equal(t, []string{"app__dao_get/yacht/1", "other__dao_get/article/1"}, keys)
	})

	t.Run("codec stores copies", func(t *testing.T) {
		c := NewCache(WithCodec(adm.JSONCodec{}))
		obj := adm.ObjectOf("id", "1")

		require.NoError(t, c.Write(ctx, "k", []any{"ok", obj}, none))
		obj.Set("id", "changed")

		v, found, err := c.Read(ctx, "k", none)
		require.NoError(t, err)
		require.True(t, found)
		entry := v.([]any)
		assert.Equal(t, "1", entry[1].(*adm.Object).Value("id"))
	})

	t.Run("empty key", func(t *testing.T) {
		c := NewCache()
		assert.True(t, errors.Is(c.Write(ctx, "", "v", none), ErrEmptyKey))
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := NewCache()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.Exist(cctx, "k", none)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("closed cache", func(t *testing.T) {
		c := NewCache()
		require.NoError(t, c.Close())

		assert.True(t, errors.Is(c.Write(ctx, "k", "v", none), ErrAdapterClosed))
		_, _, err := c.Read(ctx, "k", none)
		assert.True(t, errors.Is(err, ErrAdapterClosed))
		_, err = c.DeleteMatched(ctx, "*")
		assert.True(t, errors.Is(err, ErrAdapterClosed))
		assert.True(t, errors.Is(c.Ping(ctx), ErrAdapterClosed))
	})

	t.Run("concurrent access", func(t *testing.T) {
		c := NewCache()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := []string{"a", "b", "c"}[i%3]
				_ = c.Write(ctx, key, i, none)
				_, _, _ = c.Read(ctx, key, none)
				_, _ = c.DeleteMatched(ctx, "z*")
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 3, c.Len())
	})
}

func TestCacheWithCachedActionAdaptor(t *testing.T) {
	ctx := context.Background()
	c := NewCache(WithCodec(adm.JSONCodec{}))
	service := adm.NewCacheService(c, adm.WithCachePrefix("app"))

	calls := 0
	compute := func(context.Context) (any, error) {
		calls++
		return adm.ObjectOf("id", "1", "title", "Hello"), nil
	}

	for i := 0; i < 3; i++ {
		v, err := service.GetAdaptor("article", "1").Fetch(ctx, compute)
		require.NoError(t, err)
		assert.Equal(t, "Hello", v.(*adm.Object).Value("title"))
	}
	assert.Equal(t, 1, calls)

	missing := func(context.Context) (any, error) {
		return nil, adm.NewNotFoundError("GET", "/article/2")
	}
	_, err := service.GetAdaptor("article", "2").Fetch(ctx, missing)
	require.True(t, adm.IsNotFound(err))
	_, err = service.GetAdaptor("article", "2").Fetch(ctx, func(context.Context) (any, error) {
		t.Fatal("not found should be served from cache")
		return nil, nil
	})
	assert.True(t, adm.IsNotFound(err))

	n, err := service.Expire(ctx, "article")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, c.Len())
}
