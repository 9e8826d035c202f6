// Package config loads pagedlist settings from defaults, an optional YAML file
// and PAGEDLIST_* environment variables, and turns them into typed component
// configurations.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/pagedlist/pkg/client"
	"github.com/Sternrassler/pagedlist/pkg/logging"
	"github.com/Sternrassler/pagedlist/pkg/pager"
	"github.com/Sternrassler/pagedlist/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
)

// EnvPrefix prefixes environment overrides, e.g. PAGEDLIST_API_BASE_URL.
const EnvPrefix = "PAGEDLIST"

// Config is a read-only view over a viper instance. A nil viper behaves as empty.
type Config struct {
	v *viper.Viper
}

// New wraps v.
func New(v *viper.Viper) *Config {
	if v == nil {
		v = viper.New()
	}
	return &Config{v: v}
}

// Load builds a Config from defaults, the YAML file at path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return New(v), nil
}

// SetDefaults registers the default value of every known key.
func SetDefaults(v *viper.Viper) {
	clientDefaults := client.DefaultConfig("", "/items", "pagedlist/0.1.0")
	exportDefaults := pagination.DefaultConfig()
	logDefaults := logging.DefaultConfig()

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.endpoint", clientDefaults.Endpoint)
	v.SetDefault("api.offset_param", clientDefaults.OffsetParam)
	v.SetDefault("api.limit_param", clientDefaults.LimitParam)
	v.SetDefault("api.items_field", "")
	v.SetDefault("api.user_agent", clientDefaults.UserAgent)
	v.SetDefault("api.timeout", clientDefaults.Timeout)
	v.SetDefault("api.rate_limit", clientDefaults.RateLimit)
	v.SetDefault("api.burst", clientDefaults.Burst)
	v.SetDefault("api.max_retries", clientDefaults.MaxRetries)
	v.SetDefault("api.initial_backoff", clientDefaults.InitialBackoff)
	v.SetDefault("api.max_backoff", clientDefaults.MaxBackoff)
	v.SetDefault("api.token", "")
	v.SetDefault("api.scope", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("pager.page_size", exportDefaults.PageSize)
	v.SetDefault("pager.start_page", 1)

	v.SetDefault("export.max_concurrency", exportDefaults.MaxConcurrency)
	v.SetDefault("export.timeout", exportDefaults.Timeout)
	v.SetDefault("export.max_pages", exportDefaults.MaxPages)

	v.SetDefault("log.level", string(logDefaults.Level))
	v.SetDefault("log.pretty", logDefaults.Pretty)

	v.SetDefault("metrics.addr", "")
}

// Viper returns the underlying viper instance, e.g. for binding flags.
func (c *Config) Viper() *viper.Viper { return c.v }

// Typed getters; missing keys yield zero values.

func (c *Config) GetString(key string) string          { return c.v.GetString(key) }
func (c *Config) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *Config) GetFloat64(key string) float64        { return c.v.GetFloat64(key) }
func (c *Config) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *Config) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *Config) IsSet(key string) bool                { return c.v.IsSet(key) }
func (c *Config) Unmarshal(target any) error           { return c.v.Unmarshal(target) }

// Sub returns the subtree at key, or an empty Config when it does not exist.
func (c *Config) Sub(key string) *Config {
	return New(c.v.Sub(key))
}

// Client returns the HTTP item source configuration. redisClient may be nil.
func (c *Config) Client(redisClient *redis.Client) (client.Config, error) {
	baseURL := c.GetString("api.base_url")
	if baseURL == "" {
		return client.Config{}, errors.New("api.base_url is required")
	}

	cfg := client.DefaultConfig(baseURL, c.GetString("api.endpoint"), c.GetString("api.user_agent"))
	cfg.OffsetParam = c.GetString("api.offset_param")
	cfg.LimitParam = c.GetString("api.limit_param")
	cfg.ItemsField = c.GetString("api.items_field")
	cfg.Timeout = c.GetDuration("api.timeout")
	cfg.RateLimit = c.GetFloat64("api.rate_limit")
	cfg.Burst = c.GetInt("api.burst")
	cfg.MaxRetries = c.GetInt("api.max_retries")
	cfg.InitialBackoff = c.GetDuration("api.initial_backoff")
	cfg.MaxBackoff = c.GetDuration("api.max_backoff")
	cfg.Scope = c.GetString("api.scope")
	cfg.Redis = redisClient

	if token := c.GetString("api.token"); token != "" {
		cfg.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}

	return cfg, nil
}

// Redis returns Redis options, or nil when redis.addr is empty.
func (c *Config) Redis() *redis.Options {
	addr := c.GetString("redis.addr")
	if addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     addr,
		Password: c.GetString("redis.password"),
		DB:       c.GetInt("redis.db"),
	}
}

// Pager returns the fetcher configuration.
func (c *Config) Pager() pager.Config {
	cfg := pager.DefaultConfig(c.GetInt("pager.page_size"))
	cfg.StartPage = c.GetInt("pager.start_page")
	return cfg
}

// Export returns the batch reader configuration. It shares the pager page size.
func (c *Config) Export() pagination.Config {
	return pagination.Config{
		PageSize:       c.GetInt("pager.page_size"),
		MaxConcurrency: c.GetInt("export.max_concurrency"),
		Timeout:        c.GetDuration("export.timeout"),
		MaxPages:       c.GetInt("export.max_pages"),
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(c.GetString("log.level")))
	cfg.Pretty = c.GetBool("log.pretty")
	return cfg
}
