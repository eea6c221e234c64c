package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-adm/cli/commands"
)

func TestVersionVariables(t *testing.T) {
	// defaults before ldflags override them
	assert.Equal(t, "dev", version)
	assert.Equal(t, "none", commit)
	assert.Equal(t, "unknown", buildDate)
	assert.Equal(t, "dev", commands.Version)
}

func TestSQLDriversRegistered(t *testing.T) {
	drivers := sql.Drivers()
	assert.Contains(t, drivers, "pgx")
	assert.Contains(t, drivers, "postgres")
}

func TestDotEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADM_GATEWAY_URL=http://data-layer:9200\n"), 0644))

	t.Setenv("ADM_GATEWAY_URL", "")
	require.NoError(t, os.Unsetenv("ADM_GATEWAY_URL"))
	require.NoError(t, godotenv.Load(path))
	assert.Equal(t, "http://data-layer:9200", os.Getenv("ADM_GATEWAY_URL"))

	// existing variables win
	t.Setenv("ADM_CACHE_DRIVER", "redis")
	require.NoError(t, os.WriteFile(path, []byte("ADM_CACHE_DRIVER=postgres\n"), 0644))
	require.NoError(t, godotenv.Load(path))
	assert.Equal(t, "redis", os.Getenv("ADM_CACHE_DRIVER"))
}
