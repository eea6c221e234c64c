package containers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("ADM_CONTAINERS_TEST", "set")
	assert.Equal(t, "set", getEnvOrDefault("ADM_CONTAINERS_TEST", "default"))

	t.Setenv("ADM_CONTAINERS_TEST", "")
	assert.Equal(t, "default", getEnvOrDefault("ADM_CONTAINERS_TEST", "default"))
}

func TestDefaultPostgresConfig(t *testing.T) {
	t.Setenv("ADM_POSTGRES_URL", "")
	t.Setenv("POSTGRES_DB", "")
	t.Setenv("POSTGRES_PORT", "6543")

	cfg := defaultPostgresConfig()
	assert.Equal(t, "adm_test", cfg.database)
	assert.Equal(t, "postgres", cfg.user)
	assert.Equal(t, "6543", cfg.port)

	WithPostgresDatabase("other")(cfg)
	WithPostgresPort("5433")(cfg)
	assert.Equal(t, "other", cfg.database)
	assert.Equal(t, "5433", cfg.port)
}

func TestPostgresContainer_ConnectionString(t *testing.T) {
	c := &PostgresContainer{Host: "db", Port: "5432", Database: "adm", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/adm?sslmode=disable", c.ConnectionString())

	c.connStr = "postgres://elsewhere/adm"
	assert.Equal(t, "postgres://elsewhere/adm", c.ConnectionString())
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"cache"`, quoteIdentifier("cache"))
	assert.Equal(t, `"a""b"`, quoteIdentifier(`a"b`))
}

func TestWaitFor(t *testing.T) {
	t.Run("retries until ping succeeds", func(t *testing.T) {
		calls := 0
		err := waitFor(context.Background(), func(context.Context) error {
			calls++
			if calls < 2 {
				return errors.New("not yet")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("returns the last error on timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		down := errors.New("down")
		err := waitFor(ctx, func(context.Context) error { return down })
		assert.ErrorIs(t, err, down)
	})
}

func TestStartPostgres_Integration(t *testing.T) {
	c := StartPostgres(t, 2*time.Second)

	db, err := c.DB(context.Background())
	require.NoError(t, err)
	defer db.Close()

	schema := c.IsolatedSchema(t, "containers")
	_, err = db.Exec("CREATE SCHEMA " + quoteIdentifier(schema))
	require.NoError(t, err)
}

func TestStartRedis_Integration(t *testing.T) {
	c := StartRedis(t, 2*time.Second)
	assert.NotEmpty(t, c.URL)
}
