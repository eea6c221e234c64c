// Package config provides configuration management for the adm CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AshkanYarmoradi/go-adm"
)

// Cache drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Cache codecs.
const (
	CodecJSON     = "json"
	CodecMsgpack  = "msgpack"
	CodecProtobuf = "protobuf"
)

// Config represents the adm CLI configuration
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	// Project configuration
	Project ProjectConfig `yaml:"project"`

	// Gateway configuration
	Gateway GatewayConfig `yaml:"gateway"`

	// Cache backend configuration
	Cache CacheConfig `yaml:"cache"`

	// CacheOptions are the named cache options handed to the CacheService
	CacheOptions adm.OptionsStore `yaml:"cache_options"`
}

// ProjectConfig contains project-level settings
type ProjectConfig struct {
	// Name of the project
	Name string `yaml:"name"`
}

// GatewayConfig describes the data layer endpoint
type GatewayConfig struct {
	// URL is the base URL of the data layer
	URL string `yaml:"url"`

	// Timeout bounds every request
	Timeout time.Duration `yaml:"timeout"`

	// Token is sent as a bearer token when set
	Token string `yaml:"token,omitempty"`
}

// CacheConfig selects and configures the cache backend
type CacheConfig struct {
	// Driver is memory, redis or postgres
	Driver string `yaml:"driver"`

	// URL is the redis or postgres connection string
	URL string `yaml:"url,omitempty"`

	// Prefix is the application prefix of every cache key
	Prefix string `yaml:"prefix"`

	// Schema is the postgres schema
	Schema string `yaml:"schema,omitempty"`

	// SQLDriver is the database/sql driver for postgres: pgx or postgres (lib/pq)
	SQLDriver string `yaml:"sql_driver,omitempty"`

	// Codec is json, msgpack or protobuf
	Codec string `yaml:"codec"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Project: ProjectConfig{
			Name: "my-adm-app",
		},
		Gateway: GatewayConfig{
			URL:     "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Driver: DriverMemory,
			Prefix: "adm",
			Schema: "adm",
			Codec:  CodecJSON,
		},
		CacheOptions: adm.OptionsStore{
			Default: adm.CacheOptions{ExpiresIn: 5 * time.Minute},
			Entries: map[string]adm.CacheOptions{},
		},
	}
}

// ConfigFileName is the default config file name
const ConfigFileName = "adm.yaml"

// Load loads configuration from the specified directory
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
// Environment variables in the file are expanded.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if cfg.CacheOptions.Entries == nil {
		cfg.CacheOptions.Entries = map[string]adm.CacheOptions{}
	}

	return cfg, nil
}

// Save saves the configuration to the specified directory
func (c *Config) Save(dir string) error {
	path := filepath.Join(dir, ConfigFileName)
	return c.SaveFile(path)
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached root, config not found
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// OptionsStore returns the configured cache options.
func (c *Config) OptionsStore() *adm.OptionsStore {
	return adm.NewOptionsStore(c.CacheOptions.Default, c.CacheOptions.Entries)
}

// Validate validates the configuration
func (c *Config) Validate() []string {
	var errors []string

	if c.Project.Name == "" {
		errors = append(errors, "project.name is required")
	}

	if c.Gateway.URL == "" {
		errors = append(errors, "gateway.url is required")
	}

	if c.Gateway.Timeout < 0 {
		errors = append(errors, "gateway.timeout cannot be negative")
	}

	switch c.Cache.Driver {
	case DriverMemory:
	case DriverRedis, DriverPostgres:
		if c.Cache.URL == "" {
			errors = append(errors, fmt.Sprintf("cache.url is required for %s driver", c.Cache.Driver))
		}
	case "":
		errors = append(errors, "cache.driver is required")
	default:
		errors = append(errors, "cache.driver must be 'memory', 'redis' or 'postgres'")
	}

	switch c.Cache.SQLDriver {
	case "", "pgx", "postgres":
	default:
		errors = append(errors, "cache.sql_driver must be 'pgx' or 'postgres'")
	}

	switch c.Cache.Codec {
	case "", CodecJSON, CodecMsgpack, CodecProtobuf:
	default:
		errors = append(errors, "cache.codec must be 'json', 'msgpack' or 'protobuf'")
	}

	return errors
}

// GenerateYAML generates YAML content with comments
func GenerateYAML(cfg *Config) string {
	url := cfg.Cache.URL
	switch {
	case url != "":
	case cfg.Cache.Driver == DriverRedis:
		url = "${REDIS_URL}"
	case cfg.Cache.Driver == DriverPostgres:
		url = "${DATABASE_URL}"
	}

	return `# adm Configuration File
# This file configures the adm CLI

version: "1"

# Project settings
project:
  name: "` + cfg.Project.Name + `"

# Data layer settings
gateway:
  # Base URL of the data layer
  url: "` + cfg.Gateway.URL + `"

  # Request timeout
  timeout: ` + cfg.Gateway.Timeout.String() + `

  # Bearer token
  token: "${ADM_GATEWAY_TOKEN}"

# Response cache
cache:
  # Driver: memory, redis or postgres
  driver: "` + cfg.Cache.Driver + `"

  # Connection URL (redis and postgres only)
  url: "` + url + `"

  # Prefix of every cache key
  prefix: "` + cfg.Cache.Prefix + `"

  # Database schema (postgres only)
  schema: "` + cfg.Cache.Schema + `"

  # database/sql driver (postgres only): pgx or postgres
  sql_driver: "` + cfg.Cache.SQLDriver + `"

  # Codec: json, msgpack or protobuf
  codec: "` + cfg.Cache.Codec + `"

# Cache options by name (dao_<name>_get_options, dao_<name>_get_full_options...)
cache_options:
  default:
    expires_in: ` + cfg.CacheOptions.Default.ExpiresIn.String() + `
  entries: {}
`
}
