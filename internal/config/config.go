// Package config loads guardian settings from defaults, an optional config
// file and GUARDIAN_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable key
const EnvPrefix = "GUARDIAN"

// Backend names accepted for cache and run storage
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// HTTP Server
	HTTPAddr       string
	MetricsEnabled bool

	// Storage
	CacheBackend  string
	RunsBackend   string
	DatabaseURL   string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Discovery
	CacheTTL            time.Duration
	TimeBudget          time.Duration
	ProviderConcurrency int
	Providers           []string
	CatalogPath         string
	GitHubToken         string
	GitHubURL           string
	NPMURL              string
	RegistryURL         string
	RequestsPerSecond   float64

	// Scheduler
	PurgeInterval time.Duration
	WarmQueries   []string
	WarmWorkers   int

	// Logging
	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"http_addr":            ":8080",
	"metrics_enabled":      true,
	"cache_backend":        BackendMemory,
	"runs_backend":         BackendMemory,
	"db_url":               "postgres://localhost:5432/guardian?sslmode=disable",
	"sqlite_path":          "guardian.db",
	"redis_addr":           "localhost:6379",
	"redis_password":       "",
	"redis_db":             0,
	"redis_prefix":         "guardian:cache:",
	"cache_ttl":            "24h",
	"time_budget":          "8s",
	"provider_concurrency": 8,
	"providers":            "catalog,npm,github,registry",
	"catalog_path":         "",
	"github_token":         "",
	"github_url":           "https://api.github.com",
	"npm_url":              "https://registry.npmjs.org",
	"registry_url":         "https://registry.modelcontextprotocol.io",
	"requests_per_second":  5.0,
	"purge_interval":       "1h",
	"warm_queries":         "",
	"warm_workers":         2,
	"log_level":            "info",
	"log_format":           "console",
}

// New returns a viper instance carrying guardian defaults and env bindings.
// Callers may bind command-line flags to it before calling FromViper.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, if given, then the environment
func LoadFile(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr:            v.GetString("http_addr"),
		MetricsEnabled:      v.GetBool("metrics_enabled"),
		CacheBackend:        strings.ToLower(strings.TrimSpace(v.GetString("cache_backend"))),
		RunsBackend:         strings.ToLower(strings.TrimSpace(v.GetString("runs_backend"))),
		DatabaseURL:         v.GetString("db_url"),
		SQLitePath:          v.GetString("sqlite_path"),
		RedisAddr:           v.GetString("redis_addr"),
		RedisPassword:       v.GetString("redis_password"),
		RedisDB:             v.GetInt("redis_db"),
		RedisPrefix:         v.GetString("redis_prefix"),
		CacheTTL:            v.GetDuration("cache_ttl"),
		TimeBudget:          v.GetDuration("time_budget"),
		ProviderConcurrency: v.GetInt("provider_concurrency"),
		Providers:           splitList(v.Get("providers")),
		CatalogPath:         v.GetString("catalog_path"),
		GitHubToken:         v.GetString("github_token"),
		GitHubURL:           v.GetString("github_url"),
		NPMURL:              v.GetString("npm_url"),
		RegistryURL:         v.GetString("registry_url"),
		RequestsPerSecond:   v.GetFloat64("requests_per_second"),
		PurgeInterval:       v.GetDuration("purge_interval"),
		WarmQueries:         splitList(v.Get("warm_queries")),
		WarmWorkers:         v.GetInt("warm_workers"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case BackendMemory, BackendRedis, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("invalid cache backend %q", c.CacheBackend)
	}
	switch c.RunsBackend {
	case BackendMemory, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("invalid runs backend %q", c.RunsBackend)
	}
	if c.usesBackend(BackendPostgres) && c.DatabaseURL == "" {
		return fmt.Errorf("%s_DB_URL is required for the postgres backend", EnvPrefix)
	}
	if c.usesBackend(BackendSQLite) && c.SQLitePath == "" {
		return fmt.Errorf("%s_SQLITE_PATH is required for the sqlite backend", EnvPrefix)
	}
	if c.CacheBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("%s_REDIS_ADDR is required for the redis backend", EnvPrefix)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL)
	}
	if c.TimeBudget <= 0 {
		return fmt.Errorf("time budget must be positive, got %s", c.TimeBudget)
	}
	if c.ProviderConcurrency < 1 {
		return fmt.Errorf("provider concurrency must be at least 1, got %d", c.ProviderConcurrency)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	if c.PurgeInterval < 0 {
		return fmt.Errorf("purge interval must not be negative, got %s", c.PurgeInterval)
	}
	if c.WarmWorkers < 1 {
		c.WarmWorkers = 1
	}
	return nil
}

func (c *Config) usesBackend(name string) bool {
	return c.CacheBackend == name || c.RunsBackend == name
}

// splitList accepts either a comma separated string (env vars, flags) or a
// list (config files) and returns the trimmed non-empty items.
func splitList(raw any) []string {
	var items []string
	switch v := raw.(type) {
	case string:
		items = strings.Split(v, ",")
	case []string:
		items = v
	case []any:
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
