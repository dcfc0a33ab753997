// Package config loads pokeref configuration from defaults, an optional
// YAML file, an optional .env file and POKEREF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/pokeref/pkg/aggregate"
	"github.com/Sternrassler/pokeref/pkg/cache"
	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/Sternrassler/pokeref/pkg/ratelimit"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. POKEREF_SERVER_ADDR.
const EnvPrefix = "POKEREF"

// Store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config holds all configuration for pokeref.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CacheMaxAge is advertised to HTTP clients on REST responses.
	CacheMaxAge time.Duration `mapstructure:"cache_max_age"`
}

// UpstreamConfig configures the PokeAPI client and the fan-out.
type UpstreamConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ListLimit int           `mapstructure:"list_limit"`

	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	AggregateTimeout time.Duration `mapstructure:"aggregate_timeout"`

	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CacheConfig configures the query cache and its persistent store.
type CacheConfig struct {
	Store           string        `mapstructure:"store"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	PersistMaxAge   time.Duration `mapstructure:"persist_max_age"`
	CollectInterval time.Duration `mapstructure:"collect_interval"`
	LoadTimeout     time.Duration `mapstructure:"load_timeout"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// setDefaults registers every key so environment variables can override
// keys that appear in no config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cache_max_age", time.Hour)

	v.SetDefault("upstream.base_url", pokeapi.DefaultBaseURL)
	v.SetDefault("upstream.user_agent", "pokeref/0.1.0")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("upstream.list_limit", pokeapi.DefaultListLimit)
	v.SetDefault("upstream.max_concurrency", aggregate.DefaultConfig().MaxConcurrency)
	v.SetDefault("upstream.aggregate_timeout", 2*time.Minute)
	v.SetDefault("upstream.max_retries", pokeapi.DefaultRetryConfig().MaxRetries)
	v.SetDefault("upstream.initial_backoff", pokeapi.DefaultRetryConfig().InitialBackoff)
	v.SetDefault("upstream.max_backoff", pokeapi.DefaultRetryConfig().MaxBackoff)
	v.SetDefault("upstream.requests_per_second", ratelimit.DefaultConfig().RequestsPerSecond)
	v.SetDefault("upstream.burst", ratelimit.DefaultConfig().Burst)

	v.SetDefault("cache.store", StoreMemory)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.sqlite_path", "pokeref-cache.db")
	v.SetDefault("cache.persist_max_age", cache.DefaultPersistMaxAge)
	v.SetDefault("cache.collect_interval", 10*time.Minute)
	v.SetDefault("cache.load_timeout", 2*time.Minute)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
}

// Load reads configuration. Precedence, highest first: environment
// variables, .env, the config file, defaults.
//
// With path empty, pokeref.yaml is looked up in the working directory and
// $HOME/.pokeref and skipped if absent. An explicit path must exist.
func Load(path string) (*Config, error) {
	// Existing environment variables win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("pokeref")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pokeref")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}

	u := c.Upstream
	if u.BaseURL == "" {
		add("upstream.base_url is required")
	}
	if u.UserAgent == "" {
		add("upstream.user_agent is required")
	}
	if u.ListLimit < 1 {
		add("upstream.list_limit must be >= 1 (got %d)", u.ListLimit)
	}
	if u.MaxConcurrency < 1 {
		add("upstream.max_concurrency must be >= 1 (got %d)", u.MaxConcurrency)
	}
	if u.MaxRetries < 0 {
		add("upstream.max_retries must be >= 0 (got %d)", u.MaxRetries)
	}
	if u.Timeout < 0 || u.AggregateTimeout < 0 {
		add("upstream timeouts must be >= 0")
	}
	if u.RequestsPerSecond < 0 {
		add("upstream.requests_per_second must be >= 0 (got %g)", u.RequestsPerSecond)
	}

	switch c.Cache.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Cache.RedisAddr == "" {
			add("cache.redis_addr is required for the redis store")
		}
	case StoreSQLite:
		if c.Cache.SQLitePath == "" {
			add("cache.sqlite_path is required for the sqlite store")
		}
	default:
		add("cache.store must be one of %s, %s, %s (got %q)", StoreMemory, StoreRedis, StoreSQLite, c.Cache.Store)
	}
	if c.Cache.CollectInterval <= 0 {
		add("cache.collect_interval must be > 0")
	}

	if _, err := logging.ParseLogLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PokeAPI returns the upstream client configuration.
func (c *Config) PokeAPI() pokeapi.Config {
	u := c.Upstream
	return pokeapi.Config{
		BaseURL:   u.BaseURL,
		UserAgent: u.UserAgent,
		Timeout:   u.Timeout,
		ListLimit: u.ListLimit,
		Retry: pokeapi.RetryConfig{
			MaxRetries:     u.MaxRetries,
			InitialBackoff: u.InitialBackoff,
			MaxBackoff:     u.MaxBackoff,
		},
		RateLimit: ratelimit.Config{
			RequestsPerSecond: u.RequestsPerSecond,
			Burst:             u.Burst,
		},
	}
}

// Aggregate returns the fan-out configuration.
func (c *Config) Aggregate() aggregate.Config {
	return aggregate.Config{
		MaxConcurrency: c.Upstream.MaxConcurrency,
		Timeout:        c.Upstream.AggregateTimeout,
	}
}

// QueryCache returns the query cache configuration for store.
func (c *Config) QueryCache(store cache.Store) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Store = store
	cfg.PersistMaxAge = c.Cache.PersistMaxAge
	cfg.LoadTimeout = c.Cache.LoadTimeout
	return cfg
}

// Logging returns the logger configuration. The level has been validated.
func (c *Config) Logging() logging.Config {
	level, _ := logging.ParseLogLevel(c.Log.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.Log.Pretty
	return cfg
}
