// Package postgres provides a PostgreSQL implementation of adm.Cache.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/adapters"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Sentinel errors for the postgres adapter.
// These are aliases to the adapters package errors for compatibility with errors.Is().
var (
	ErrAdapterClosed = adapters.ErrAdapterClosed
	ErrEmptyKey      = adapters.ErrEmptyKey
)

// Ensure Adapter implements required interfaces.
var (
	_ adapters.CacheAdapter  = (*Adapter)(nil)
	_ adapters.HealthChecker = (*Adapter)(nil)
	_ adapters.Migrator      = (*Adapter)(nil)
)

const (
	DefaultSchema = "adm"
	DefaultTable  = "cache_entries"
	DefaultDriver = "pgx"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Adapter stores cache entries in a PostgreSQL table.
//
// Values are encoded with the configured codec (JSON by default) and stored
// as BYTEA. Expired rows are ignored on read and removed by Prune.
type Adapter struct {
	db     *sql.DB
	driver string
	schema string
	table  string
	codec  adm.Codec
	now    func() time.Time
	closed atomic.Bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(a *Adapter) {
		a.schema = schema
	}
}

// WithTable sets the cache table name.
func WithTable(table string) Option {
	return func(a *Adapter) {
		a.table = table
	}
}

// WithCodec sets the codec used to encode cached values.
func WithCodec(c adm.Codec) Option {
	return func(a *Adapter) {
		a.codec = c
	}
}

// WithDriver selects the database/sql driver used by NewAdapter.
// The driver must be registered by the caller, e.g. "postgres" for lib/pq.
func WithDriver(name string) Option {
	return func(a *Adapter) {
		a.driver = name
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(a *Adapter) {
		if a.db != nil {
			a.db.SetMaxOpenConns(n)
		}
	}
}

// WithMaxIdleConnections sets the maximum number of idle connections.
func WithMaxIdleConnections(n int) Option {
	return func(a *Adapter) {
		if a.db != nil {
			a.db.SetMaxIdleConns(n)
		}
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *Adapter) {
		if a.db != nil {
			a.db.SetConnMaxLifetime(d)
		}
	}
}

func newAdapter(db *sql.DB) *Adapter {
	return &Adapter{
		db:     db,
		driver: DefaultDriver,
		schema: DefaultSchema,
		table:  DefaultTable,
		now:    time.Now,
	}
}

// NewAdapter opens connStr and creates a cache adapter on it.
func NewAdapter(connStr string, opts ...Option) (*Adapter, error) {
	probe := newAdapter(nil)
	for _, opt := range opts {
		opt(probe)
	}

	db, err := sql.Open(probe.driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("adm/postgres: failed to open database: %w", err)
	}
	a, err := NewAdapterWithDB(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// NewAdapterWithDB creates a cache adapter on an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) (*Adapter, error) {
	a := newAdapter(db)
	for _, opt := range opts {
		opt(a)
	}
	a.codec = adapters.CodecOrDefault(a.codec)

	if err := validateIdentifier(a.schema, "schema"); err != nil {
		return nil, err
	}
	if err := validateIdentifier(a.table, "table"); err != nil {
		return nil, err
	}
	return a, nil
}

func validateIdentifier(name, kind string) error {
	if name == "" {
		return fmt.Errorf("adm/postgres: %s name cannot be empty", kind)
	}
	if len(name) > 63 {
		return fmt.Errorf("adm/postgres: %s name exceeds 63 characters", kind)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("adm/postgres: %s name contains invalid characters", kind)
	}
	return nil
}

// tableName returns the fully qualified and quoted table name.
func (a *Adapter) tableName() string {
	return pgx.Identifier{a.schema, a.table}.Sanitize()
}

// Migrate creates the schema, the cache table and its expiry index.
func (a *Adapter) Migrate(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}

	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{a.schema}.Sanitize()))
	if err != nil {
		return fmt.Errorf("adm/postgres: failed to create schema: %w", err)
	}

	tableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key             TEXT PRIMARY KEY,
			value           BYTEA NOT NULL,
			expires_at      TIMESTAMPTZ,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, a.tableName())
	if _, err := a.db.ExecContext(ctx, tableSQL); err != nil {
		return fmt.Errorf("adm/postgres: failed to create cache table: %w", err)
	}

	index := pgx.Identifier{"idx_" + a.table + "_expires_at"}.Sanitize()
	indexSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(expires_at)`, index, a.tableName())
	if _, err := a.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("adm/postgres: failed to create index: %w", err)
	}
	return nil
}

// Exist reports whether a live entry is stored under key.
func (a *Adapter) Exist(ctx context.Context, key string, opts adm.CacheOptions) (bool, error) {
	if a.closed.Load() {
		return false, ErrAdapterClosed
	}
	storageKey, err := adapters.StorageKey(key, opts)
	if err != nil {
		return false, err
	}

	var exists bool
	err = a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
		)`, a.tableName()), storageKey, a.now()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("adm/postgres: failed to check key: %w", err)
	}
	return exists, nil
}

// Read returns the live entry stored under key.
func (a *Adapter) Read(ctx context.Context, key string, opts adm.CacheOptions) (any, bool, error) {
	if a.closed.Load() {
		return nil, false, ErrAdapterClosed
	}
	storageKey, err := adapters.StorageKey(key, opts)
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT value FROM %s
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`, a.tableName()),
		storageKey, a.now()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("adm/postgres: failed to read key: %w", err)
	}

	v, err := adapters.CacheEntry{Key: storageKey, Value: data}.Decode(a.codec)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Write upserts value under key.
func (a *Adapter) Write(ctx context.Context, key string, value any, opts adm.CacheOptions) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	entry, err := adapters.NewCacheEntry(a.codec, key, value, opts, a.now())
	if err != nil {
		return err
	}

	var expiresAt sql.NullTime
	if !entry.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: entry.ExpiresAt, Valid: true}
	}

	_, err = a.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()`, a.tableName()),
		entry.Key, entry.Value, expiresAt)
	if err != nil {
		return fmt.Errorf("adm/postgres: failed to write key: %w", err)
	}
	return nil
}

// DeleteMatched removes every key matching the glob pattern.
func (a *Adapter) DeleteMatched(ctx context.Context, pattern string) (int, error) {
	if a.closed.Load() {
		return 0, ErrAdapterClosed
	}
	like, err := adapters.GlobToLike(pattern)
	if err != nil {
		return 0, err
	}

	res, err := a.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key LIKE $1 ESCAPE '\'`, a.tableName()), like)
	if err != nil {
		return 0, fmt.Errorf("adm/postgres: failed to delete keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("adm/postgres: failed to count deleted keys: %w", err)
	}
	return int(n), nil
}

// Prune removes expired rows and returns how many were removed.
func (a *Adapter) Prune(ctx context.Context) (int, error) {
	if a.closed.Load() {
		return 0, ErrAdapterClosed
	}
	res, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1`, a.tableName()), a.now())
	if err != nil {
		return 0, fmt.Errorf("adm/postgres: failed to prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("adm/postgres: failed to count pruned rows: %w", err)
	}
	return int(n), nil
}

// Ping checks the database connection.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// Close releases the database connection.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	return a.db.Close()
}

// DB returns the underlying database connection.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *Adapter) Schema() string {
	return a.schema
}

// Table returns the cache table name.
func (a *Adapter) Table() string {
	return a.table
}

// Driver returns the database/sql driver name.
func (a *Adapter) Driver() string {
	return a.driver
}
