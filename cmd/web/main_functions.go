package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ppotrimba/blog/internal/config"
	"github.com/ppotrimba/blog/internal/database"
	"github.com/ppotrimba/blog/internal/pgdb"
	"github.com/ppotrimba/blog/internal/popular"
	"github.com/ppotrimba/blog/internal/web"
)

// blogStore is the web store plus shutdown
type blogStore interface {
	web.ArticleStore
	Close() error
}

// trackerCloser is a tracker with its own connection
type trackerCloser interface {
	popular.Tracker
	Close() error
}

// applyFlags overrides config (defaults + env) with the flags that were set
func applyFlags(cfg *config.MainConfig) {
	if webport > 0 {
		cfg.Web.ListenPort = webport
		log.Printf("[WEB]: Overriding listen port with command-line flag: %d", webport)
	}
	if webssl {
		cfg.Web.SSL = true
		log.Printf("[WEB]: SSL enabled via command-line flag")
	}
	if webcertFile != "" {
		cfg.Web.CertFile = webcertFile
	}
	if webkeyFile != "" {
		cfg.Web.KeyFile = webkeyFile
	}
	if webmediaDir != "" {
		cfg.Web.MediaDir = webmediaDir
	}
	if dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}
	if sqlitePath != "" {
		cfg.Database.SQLitePath = sqlitePath
	}
	if postgresDSN != "" {
		cfg.Database.PostgresDSN = postgresDSN
		if dbDriver == "" {
			cfg.Database.Driver = config.DriverPostgres
		}
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if trustedBodyHTML {
		cfg.Render.TrustedBodyHTML = true
		log.Printf("[WEB]: Trusted body HTML enabled, bodies are sanitized and rendered as HTML")
	}
	if popularLimit > 0 {
		cfg.Render.PopularLimit = popularLimit
	}
	if pprofAddr != "" {
		cfg.PprofAddr = pprofAddr
	}
	if maxArticleCache > 0 {
		cfg.Database.ArticleCacheSize = maxArticleCache
	}
}

// openStore opens the configured backend and applies its schema
func openStore(cfg *config.MainConfig) (blogStore, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return pgdb.Connect(ctx, cfg.Database.PostgresDSN, pgdb.PoolConfig{
			MaxConns: cfg.Database.MaxOpenConns,
			MinConns: cfg.Database.MaxIdleConns,
		})
	case config.DriverSQLite:
		dbconfig := database.DefaultDBConfig()
		dbconfig.Path = cfg.Database.SQLitePath
		dbconfig.MaxOpenConns = cfg.Database.MaxOpenConns
		dbconfig.MaxIdleConns = cfg.Database.MaxIdleConns
		dbconfig.WALMode = cfg.Database.WALMode
		dbconfig.ArticleCacheSize = cfg.Database.ArticleCacheSize
		dbconfig.ArticleCacheExpiry = cfg.Database.ArticleCacheExpiry
		db, err := database.OpenDatabase(dbconfig)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// openTracker returns a Redis tracker when Redis is configured, nil otherwise
// (the web server then counts views in the store)
func openTracker(cfg *config.MainConfig) (trackerCloser, error) {
	if !cfg.Redis.Enabled() {
		log.Printf("[POPULAR]: No Redis configured, views are counted in the %s store", cfg.Database.Driver)
		return nil, nil
	}

	var (
		tracker *popular.RedisTracker
		err     error
	)
	if cfg.Redis.URL != "" {
		tracker, err = popular.NewRedisTrackerWithURL(cfg.Redis.URL, cfg.Redis.Key)
	} else {
		tracker, err = popular.NewRedisTracker(cfg.Redis.Addr, cfg.Redis.Key)
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracker.Ping(ctx); err != nil {
		tracker.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Printf("[POPULAR]: Counting views in Redis key %q", cfg.Redis.Key)
	return tracker, nil
}
