// Package config loads the proxy configuration from a YAML file and DEX_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/pokedex-client/pkg/cache"
	"github.com/Sternrassler/pokedex-client/pkg/client"
	"github.com/Sternrassler/pokedex-client/pkg/dex"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
	"github.com/Sternrassler/pokedex-client/pkg/movetype"
	"github.com/Sternrassler/pokedex-client/pkg/pagination"
)

// EnvPrefix prefixes every environment override, e.g. DEX_UPSTREAM_USER_AGENT.
const EnvPrefix = "DEX"

// Config is the process configuration, read from dex.yaml and DEX_*
// environment variables.
type Config struct {
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Paging    PagingConfig    `mapstructure:"paging"`
	MoveTypes MoveTypesConfig `mapstructure:"move_types"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// UpstreamConfig addresses the catalog API and tunes the retry executor.
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	UserAgent      string        `mapstructure:"user_agent" validate:"required"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
}

// CacheConfig holds the per-kind TTLs of the in-process cache.
// They must satisfy list <= detail < lookup and count <= detail.
type CacheConfig struct {
	DetailTTL time.Duration `mapstructure:"detail_ttl" validate:"gt=0"`
	LookupTTL time.Duration `mapstructure:"lookup_ttl" validate:"gt=0"`
	ListTTL   time.Duration `mapstructure:"list_ttl" validate:"gt=0"`
	CountTTL  time.Duration `mapstructure:"count_ttl" validate:"gt=0"`
}

// PagingConfig sets the default page size and the hydration worker pool.
type PagingConfig struct {
	PageSize             int           `mapstructure:"page_size" validate:"min=1,max=100"`
	HydrationConcurrency int           `mapstructure:"hydration_concurrency" validate:"min=1"`
	HydrationTimeout     time.Duration `mapstructure:"hydration_timeout" validate:"gt=0"`
}

// MoveTypesConfig bounds concurrent move lookups process-wide.
type MoveTypesConfig struct {
	Concurrency int64 `mapstructure:"concurrency" validate:"min=1"`
}

// LogConfig selects the zerolog level and console output.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error disabled"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig configures dex-proxy serve.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// RedisConfig enables the shared Redis layers. An empty Addr disables them.
type RedisConfig struct {
	// Addr enables the Redis HTTP response cache and the shared cool-down
	// window when set.
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	DB   int    `mapstructure:"db" validate:"min=0"`
}

// setDefaults mirrors the package defaults of client, cache, pagination
// and movetype.
func setDefaults(v *viper.Viper) {
	retry := client.DefaultRetryConfig()
	policy := cache.DefaultPolicy()
	hydration := pagination.DefaultConfig()

	v.SetDefault("upstream.base_url", client.DefaultBaseURL)
	v.SetDefault("upstream.user_agent", "dex-proxy/1.0")
	v.SetDefault("upstream.attempt_timeout", 15*time.Second)
	v.SetDefault("upstream.max_attempts", retry.MaxAttempts)
	v.SetDefault("upstream.initial_backoff", retry.InitialBackoff)
	v.SetDefault("upstream.max_backoff", retry.MaxBackoff)

	v.SetDefault("cache.detail_ttl", policy.Detail)
	v.SetDefault("cache.lookup_ttl", policy.Lookup)
	v.SetDefault("cache.list_ttl", policy.List)
	v.SetDefault("cache.count_ttl", policy.Count)

	v.SetDefault("paging.page_size", 20)
	v.SetDefault("paging.hydration_concurrency", hydration.MaxConcurrency)
	v.SetDefault("paging.hydration_timeout", hydration.Timeout)

	v.SetDefault("move_types.concurrency", movetype.DefaultConcurrency)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)

	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
}

// Load reads configFile (optional; "dex.yaml" in . or $HOME/.config/dex
// when empty), applies DEX_ environment overrides and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("dex")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/dex")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configuration file found but could not be read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load yields with no file and no
// environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks field constraints and the TTL ordering.
func (c *Config) Validate() error {
	validate, trans, err := newValidator()
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		return translate(err, trans)
	}

	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("invalid configuration: cache: %w", err)
	}
	return nil
}

// Policy returns the cache TTL policy.
func (c *Config) Policy() cache.Policy {
	return cache.Policy{
		Detail: c.Cache.DetailTTL,
		Lookup: c.Cache.LookupTTL,
		List:   c.Cache.ListTTL,
		Count:  c.Cache.CountTTL,
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// Service returns the dex.Service configuration.
func (c *Config) Service() dex.Config {
	cfg := dex.DefaultConfig(c.Upstream.UserAgent)

	cfg.Client.BaseURL = c.Upstream.BaseURL
	cfg.Client.AttemptTimeout = c.Upstream.AttemptTimeout
	cfg.Client.Retry.MaxAttempts = c.Upstream.MaxAttempts
	cfg.Client.Retry.InitialBackoff = c.Upstream.InitialBackoff
	cfg.Client.Retry.MaxBackoff = c.Upstream.MaxBackoff

	cfg.Policy = c.Policy()
	cfg.PageSize = c.Paging.PageSize
	cfg.Hydration = pagination.Config{
		MaxConcurrency: c.Paging.HydrationConcurrency,
		Timeout:        c.Paging.HydrationTimeout,
	}
	cfg.MoveTypeConcurrency = c.MoveTypes.Concurrency
	cfg.RedisAddr = c.Redis.Addr
	cfg.RedisDB = c.Redis.DB

	return cfg
}
