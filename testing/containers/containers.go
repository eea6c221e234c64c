// Package containers locates the PostgreSQL and Redis servers used by the
// cache adapter integration tests.
//
// The servers are expected to be running already (for example from a
// docker-compose file). When one is not reachable the calling test is
// skipped, so integration tests stay green on machines without Docker.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// =============================================================================
// PostgreSQL
// =============================================================================

// PostgresContainer is a reachable PostgreSQL server.
type PostgresContainer struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	connStr  string
}

// PostgresOption configures StartPostgres.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	url      string
	database string
	user     string
	password string
	port     string
}

// WithPostgresDatabase sets the database name.
func WithPostgresDatabase(database string) PostgresOption {
	return func(c *postgresConfig) {
		c.database = database
	}
}

// WithPostgresPort sets the port.
func WithPostgresPort(port string) PostgresOption {
	return func(c *postgresConfig) {
		c.port = port
	}
}

// defaultPostgresConfig reads the connection settings from the environment.
//
// Environment variables:
//   - ADM_POSTGRES_URL: full connection string, overrides the others
//   - POSTGRES_DB: database name (default: adm_test)
//   - POSTGRES_USER: username (default: postgres)
//   - POSTGRES_PASSWORD: password (default: postgres)
//   - POSTGRES_PORT: port (default: 5432)
func defaultPostgresConfig() *postgresConfig {
	return &postgresConfig{
		url:      os.Getenv("ADM_POSTGRES_URL"),
		database: getEnvOrDefault("POSTGRES_DB", "adm_test"),
		user:     getEnvOrDefault("POSTGRES_USER", "postgres"),
		password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
		port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
	}
}

// StartPostgres waits up to timeout for PostgreSQL and skips t when it
// does not answer.
func StartPostgres(t *testing.T, timeout time.Duration, opts ...PostgresOption) *PostgresContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := defaultPostgresConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := &PostgresContainer{
		Host:     "localhost",
		Port:     cfg.port,
		Database: cfg.database,
		User:     cfg.user,
		Password: cfg.password,
		connStr:  cfg.url,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := waitFor(ctx, func(ctx context.Context) error { return pingPostgres(ctx, c.ConnectionString()) }); err != nil {
		t.Skipf("PostgreSQL not available at %s: %v", c.ConnectionString(), err)
	}
	return c
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresContainer) ConnectionString() string {
	if c.connStr != "" {
		return c.connStr
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// DB opens and pings a pgx connection pool.
func (c *PostgresContainer) DB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("pgx", c.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("containers: failed to open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("containers: failed to ping database: %w", err)
	}
	return db, nil
}

// IsolatedSchema returns a fresh schema name, dropped with everything in it
// when t finishes.
func (c *PostgresContainer) IsolatedSchema(t *testing.T, prefix string) string {
	t.Helper()
	ctx := context.Background()

	db, err := c.DB(ctx)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	schema := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	t.Cleanup(func() {
		if _, err := db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+quoteIdentifier(schema)+" CASCADE"); err != nil {
			t.Logf("Warning: failed to drop schema %s: %v", schema, err)
		}
		db.Close()
	})
	return schema
}

func pingPostgres(ctx context.Context, connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

// quoteIdentifier quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// =============================================================================
// Redis
// =============================================================================

// RedisContainer is a reachable Redis server.
type RedisContainer struct {
	URL string
}

// StartRedis waits up to timeout for the Redis server at ADM_REDIS_URL
// (default redis://localhost:6379/15) and skips t when it does not answer.
func StartRedis(t *testing.T, timeout time.Duration) *RedisContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	url := getEnvOrDefault("ADM_REDIS_URL", "redis://localhost:6379/15")
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("Invalid ADM_REDIS_URL: %v", err)
	}

	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := waitFor(ctx, func(ctx context.Context) error { return client.Ping(ctx).Err() }); err != nil {
		t.Skipf("Redis not available at %s: %v", url, err)
	}
	return &RedisContainer{URL: url}
}

// waitFor retries ping until it succeeds or ctx ends.
func waitFor(ctx context.Context, ping func(context.Context) error) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	err := ping(ctx)
	for err != nil {
		select {
		case <-ctx.Done():
			return err
		case <-ticker.C:
			err = ping(ctx)
		}
	}
	return nil
}
