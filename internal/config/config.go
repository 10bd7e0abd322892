// Package config provides configuration management for the blog.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var AppVersion = "-unset-" // will be set at build time

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	DefaultListenPort     = 11980
	DefaultRequestTimeout = 10 * time.Second
	DefaultPopularLimit   = 5
	MaxPopularLimit       = 50

	// env prefix for all overrides
	EnvPrefix = "BLOG_"
)

// MainConfig holds the main configuration for the blog
type MainConfig struct {
	// Mutex for thread-safe access
	mux sync.Mutex `json:"-"`

	Web      WebConfig      `json:"web"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Render   RenderConfig   `json:"render"`

	PprofAddr  string `json:"pprof_addr"`  // empty disables the profiler
	AppVersion string `json:"app_version"` // Application version, set at build time
}

// WebConfig holds web interface configuration
type WebConfig struct {
	ListenPort     int           `json:"listen_port"`
	SSL            bool          `json:"ssl"`
	CertFile       string        `json:"cert_file,omitempty"`
	KeyFile        string        `json:"key_file,omitempty"`
	TrustedProxies []string      `json:"trusted_proxies"`
	RateLimitRPS   float64       `json:"rate_limit_rps"` // 0 disables rate limiting
	RateLimitBurst int           `json:"rate_limit_burst"`
	RequestTimeout time.Duration `json:"request_timeout"`
	Debug          bool          `json:"debug"`
	MediaDir       string        `json:"media_dir"` // article photos, served under /media
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver             string        `json:"driver"` // sqlite3 or postgres
	SQLitePath         string        `json:"sqlite_path"`
	PostgresDSN        string        `json:"postgres_dsn,omitempty"`
	MaxOpenConns       int           `json:"max_open_conns"`
	MaxIdleConns       int           `json:"max_idle_conns"`
	WALMode            bool          `json:"wal_mode"`
	ArticleCacheSize   int           `json:"article_cache_size"`
	ArticleCacheExpiry time.Duration `json:"article_cache_expiry"`
}

// RedisConfig configures the optional redis view tracker.
// Addr and URL both empty means views are counted in the SQL store.
type RedisConfig struct {
	Addr string `json:"addr"`
	URL  string `json:"url"`
	Key  string `json:"key"`
}

// RenderConfig holds page rendering options
type RenderConfig struct {
	SiteTitle       string `json:"site_title"`
	Author          string `json:"author"`
	TrustedBodyHTML bool   `json:"trusted_body_html"` // render article bodies as sanitized HTML instead of escaped text
	PopularLimit    int    `json:"popular_limit"`
}

// Enabled reports whether a redis tracker should be used
func (r RedisConfig) Enabled() bool {
	return r.Addr != "" || r.URL != ""
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *MainConfig {
	maincfg := &MainConfig{
		AppVersion: AppVersion,
		Web: WebConfig{
			ListenPort:     DefaultListenPort,
			SSL:            false,
			TrustedProxies: []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			RequestTimeout: DefaultRequestTimeout,
			MediaDir:       "media",
		},
		Database: DatabaseConfig{
			Driver:             DriverSQLite,
			SQLitePath:         "data/blog.sq3",
			MaxOpenConns:       25,
			MaxIdleConns:       5,
			WALMode:            true,
			ArticleCacheSize:   1000,
			ArticleCacheExpiry: 15 * time.Minute,
		},
		Redis: RedisConfig{
			Key: "blog:popular",
		},
		Render: RenderConfig{
			SiteTitle:    "Petru Potrimba's Blog",
			Author:       "Petru Potrimba",
			PopularLimit: DefaultPopularLimit,
		},
	}
	return maincfg
}

// ApplyEnv overrides config values from BLOG_* environment variables.
// Unparsable values are logged and ignored.
func (c *MainConfig) ApplyEnv() {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.Web.ListenPort = getEnvIntOrDefault("WEB_PORT", c.Web.ListenPort)
	c.Web.SSL = getEnvBoolOrDefault("WEB_SSL", c.Web.SSL)
	c.Web.CertFile = getEnvOrDefault("WEB_SSL_CERT", c.Web.CertFile)
	c.Web.KeyFile = getEnvOrDefault("WEB_SSL_KEY", c.Web.KeyFile)
	if proxies := getEnvOrDefault("WEB_TRUSTED_PROXIES", ""); proxies != "" {
		c.Web.TrustedProxies = splitList(proxies)
	}
	c.Web.RateLimitRPS = getEnvFloatOrDefault("WEB_RATE_LIMIT_RPS", c.Web.RateLimitRPS)
	c.Web.RateLimitBurst = getEnvIntOrDefault("WEB_RATE_LIMIT_BURST", c.Web.RateLimitBurst)
	c.Web.RequestTimeout = getEnvDurationOrDefault("WEB_REQUEST_TIMEOUT", c.Web.RequestTimeout)
	c.Web.Debug = getEnvBoolOrDefault("WEB_DEBUG", c.Web.Debug)
	c.Web.MediaDir = getEnvOrDefault("WEB_MEDIA_DIR", c.Web.MediaDir)

	c.Database.Driver = getEnvOrDefault("DB_DRIVER", c.Database.Driver)
	c.Database.SQLitePath = getEnvOrDefault("DB_SQLITE_PATH", c.Database.SQLitePath)
	c.Database.PostgresDSN = getEnvOrDefault("DB_POSTGRES_DSN", c.Database.PostgresDSN)
	c.Database.MaxOpenConns = getEnvIntOrDefault("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvIntOrDefault("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ArticleCacheSize = getEnvIntOrDefault("DB_ARTICLE_CACHE_SIZE", c.Database.ArticleCacheSize)
	c.Database.ArticleCacheExpiry = getEnvDurationOrDefault("DB_ARTICLE_CACHE_EXPIRY", c.Database.ArticleCacheExpiry)

	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.URL = getEnvOrDefault("REDIS_URL", c.Redis.URL)
	c.Redis.Key = getEnvOrDefault("REDIS_KEY", c.Redis.Key)

	c.Render.SiteTitle = getEnvOrDefault("SITE_TITLE", c.Render.SiteTitle)
	c.Render.Author = getEnvOrDefault("SITE_AUTHOR", c.Render.Author)
	c.Render.TrustedBodyHTML = getEnvBoolOrDefault("TRUSTED_BODY_HTML", c.Render.TrustedBodyHTML)
	c.Render.PopularLimit = getEnvIntOrDefault("POPULAR_LIMIT", c.Render.PopularLimit)

	c.PprofAddr = getEnvOrDefault("PPROF_ADDR", c.PprofAddr)
}

// Validate checks the configuration for values the server cannot start with
func (c *MainConfig) Validate() error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.Web.ListenPort < 1024 || c.Web.ListenPort > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1024 and 65535)", c.Web.ListenPort)
	}
	if c.Web.SSL && (c.Web.CertFile == "" || c.Web.KeyFile == "") {
		return fmt.Errorf("SSL enabled but cert_file or key_file not specified in config")
	}
	if c.Web.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit rps must not be negative: %v", c.Web.RateLimitRPS)
	}
	if c.Web.RateLimitRPS > 0 && c.Web.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1 when rate limiting is enabled")
	}
	if c.Web.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive: %s", c.Web.RequestTimeout)
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path must be set for driver %s", DriverSQLite)
		}
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn must be set for driver %s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}
	if c.Render.PopularLimit < 1 || c.Render.PopularLimit > MaxPopularLimit {
		return fmt.Errorf("popular limit must be between 1 and %d: %d", MaxPopularLimit, c.Render.PopularLimit)
	}
	if c.Redis.Enabled() && c.Redis.Key == "" {
		return fmt.Errorf("redis key must be set when redis is enabled")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("[CONFIG]: ignoring invalid integer %s%s=%q", EnvPrefix, key, value)
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("[CONFIG]: ignoring invalid number %s%s=%q", EnvPrefix, key, value)
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("[CONFIG]: ignoring invalid bool %s%s=%q", EnvPrefix, key, value)
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("[CONFIG]: ignoring invalid duration %s%s=%q", EnvPrefix, key, value)
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
