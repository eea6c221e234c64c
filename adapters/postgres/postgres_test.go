package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/testing/containers"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestDB connects to the integration database and returns it with an
// isolated schema name.
func getTestDB(t *testing.T) (*sql.DB, string) {
	pg := containers.StartPostgres(t, 5*time.Second)
	db, err := pg.DB(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, pg.IsolatedSchema(t, "test")
}

func TestNewAdapter(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		a, err := NewAdapter("postgres://localhost:5432/none?sslmode=disable")
		require.NoError(t, err)
		defer a.Close()

		assert.Equal(t, DefaultSchema, a.Schema())
		assert.Equal(t, DefaultTable, a.Table())
		assert.Equal(t, DefaultDriver, a.Driver())
		assert.Equal(t, `"adm"."cache_entries"`, a.tableName())
	})

	t.Run("custom names", func(t *testing.T) {
		a, err := NewAdapter("postgres://localhost:5432/none", WithSchema("tenant_1"), WithTable("dao_cache"))
		require.NoError(t, err)
		defer a.Close()

		assert.Equal(t, `"tenant_1"."dao_cache"`, a.tableName())
	})

	t.Run("invalid identifiers", func(t *testing.T) {
		cases := map[string]Option{
			"empty schema":   WithSchema(""),
			"quoted table":   WithTable(`x"; DROP TABLE users; --`),
			"leading digit":  WithTable("1cache"),
			"long schema":    WithSchema(strings.Repeat("s", 64)),
			"dash in schema": WithSchema("my-schema"),
		}
		for name, opt := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := NewAdapter("postgres://localhost:5432/none", opt)
				require.Error(t, err)
				assert.Contains(t, err.Error(), "adm/postgres:")
			})
		}
	})

	t.Run("lib/pq driver", func(t *testing.T) {
		a, err := NewAdapter("postgres://localhost:5432/none?sslmode=disable", WithDriver("postgres"))
		require.NoError(t, err)
		defer a.Close()
		assert.Equal(t, "postgres", a.Driver())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewAdapter("postgres://localhost:5432/none", WithDriver("nosuchdriver"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open database")
	})
}

func TestAdapterClosed(t *testing.T) {
	ctx := context.Background()
	a, err := NewAdapter("postgres://localhost:5432/none")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.Exist(ctx, "k", adm.CacheOptions{})
	assert.True(t, errors.Is(err, ErrAdapterClosed))
	_, _, err = a.Read(ctx, "k", adm.CacheOptions{})
	assert.True(t, errors.Is(err, ErrAdapterClosed))
	assert.True(t, errors.Is(a.Write(ctx, "k", "v", adm.CacheOptions{}), ErrAdapterClosed))
	_, err = a.DeleteMatched(ctx, "*")
	assert.True(t, errors.Is(err, ErrAdapterClosed))
	_, err = a.Prune(ctx)
	assert.True(t, errors.Is(err, ErrAdapterClosed))
	assert.True(t, errors.Is(a.Migrate(ctx), ErrAdapterClosed))
	assert.True(t, errors.Is(a.Ping(ctx), ErrAdapterClosed))
}

func TestAdapterEmptyKey(t *testing.T) {
	a, err := NewAdapter("postgres://localhost:5432/none")
	require.NoError(t, err)
	defer a.Close()

	err = a.Write(context.Background(), "", "v", adm.CacheOptions{})
	assert.True(t, errors.Is(err, ErrEmptyKey))
	_, err = a.Exist(context.Background(), "", adm.CacheOptions{})
	assert.True(t, errors.Is(err, ErrEmptyKey))
}

func TestAdapterIntegration(t *testing.T) {
	db, schema := getTestDB(t)
	ctx := context.Background()

	now := time.Now()
	clock := func() time.Time { return now }
	a, err := NewAdapterWithDB(db, WithSchema(schema), WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, a.Migrate(ctx))
	require.NoError(t, a.Migrate(ctx), "migrate is idempotent")
	require.NoError(t, a.Ping(ctx))

	none := adm.CacheOptions{}

	t.Run("write and read", func(t *testing.T) {
		entry := []any{"ok", adm.ObjectOf("id", "1", "title", "Hello")}
		require.NoError(t, a.Write(ctx, "app__dao_get/article/1", entry, none))

		ok, err := a.Exist(ctx, "app__dao_get/article/1", none)
		require.NoError(t, err)
		assert.True(t, ok)

		v, found, err := a.Read(ctx, "app__dao_get/article/1", none)
		require.NoError(t, err)
		require.True(t, found)
		got := v.([]any)
		assert.Equal(t, "ok", got[0])
		assert.Equal(t, "Hello", got[1].(*adm.Object).Value("title"))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, a.Write(ctx, "k", "first", none))
		require.NoError(t, a.Write(ctx, "k", "second", none))

		v, _, err := a.Read(ctx, "k", none)
		require.NoError(t, err)
		assert.Equal(t, "second", v)
	})

	t.Run("missing key", func(t *testing.T) {
		_, found, err := a.Read(ctx, "nope", none)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("expiry and prune", func(t *testing.T) {
		require.NoError(t, a.Write(ctx, "short", "v", adm.CacheOptions{ExpiresIn: time.Minute}))

		ok, _ := a.Exist(ctx, "short", none)
		assert.True(t, ok)

		now = now.Add(2 * time.Minute)
		ok, _ = a.Exist(ctx, "short", none)
		assert.False(t, ok)

		n, err := a.Prune(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("delete matched escapes like wildcards", func(t *testing.T) {
		require.NoError(t, a.Write(ctx, "app__dao_get/yacht/1", "x", none))
		require.NoError(t, a.Write(ctx, "appXXdao_get/article/9", "x", none))

		n, err := a.DeleteMatched(ctx, "*app__dao_get/article*")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ok, _ := a.Exist(ctx, "appXXdao_get/article/9", none)
		assert.True(t, ok)
		ok, _ = a.Exist(ctx, "app__dao_get/yacht/1", none)
		assert.True(t, ok)
	})
}
