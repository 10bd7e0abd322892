// Package database provides the SQLite article store for the blog
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ppotrimba/blog/internal/metrics"
)

// Database represents the main database connection
type Database struct {
	mainDB *sql.DB

	// Database configuration
	dbconfig *DBConfig

	ArticleCache *ArticleCache // LRU cache for joined article rows

	WG       *sync.WaitGroup
	StopChan chan struct{} // Channel to signal shutdown (will get closed)
	stopOnce sync.Once
}

// DBConfig represents database configuration
type DBConfig struct {
	// Path of the sqlite file
	Path string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Performance settings
	WALMode   bool   // Write-Ahead Logging
	SyncMode  string // OFF, NORMAL, FULL
	CacheSize int    // KB
	TempStore string // MEMORY, FILE

	// Cache settings
	ArticleCacheSize   int           // Maximum number of cached articles
	ArticleCacheExpiry time.Duration // Cache expiry duration

	// ReadOnly opens an existing file with mode=ro and skips migrations.
	// A missing file is an error instead of a new empty database.
	ReadOnly bool
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() (dbconfig *DBConfig) {
	return &DBConfig{
		Path:               "./data/blog.sq3",
		MaxOpenConns:       25,
		MaxIdleConns:       5,
		ConnMaxLifetime:    0, // Unlimited for SQLite - connections don't need to be recycled
		WALMode:            true,
		SyncMode:           "NORMAL",
		CacheSize:          -16384, // -16384 == 1024 KB * 16384 = 16MB cache
		TempStore:          "MEMORY",
		ArticleCacheSize:   1000,
		ArticleCacheExpiry: 15 * time.Minute,
	}
}

// OpenDatabase opens the sqlite file, applies pragmas and migrations
func OpenDatabase(dbconfig *DBConfig) (*Database, error) {
	if dbconfig == nil {
		dbconfig = DefaultDBConfig()
	}

	db := &Database{
		dbconfig: dbconfig,
		WG:       &sync.WaitGroup{},
		StopChan: make(chan struct{}),
	}

	if err := db.initMainDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize main database: %w", err)
	}

	if !dbconfig.ReadOnly {
		if err := db.Migrate(context.Background()); err != nil {
			db.mainDB.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	if dbconfig.ArticleCacheSize > 0 {
		db.ArticleCache = NewArticleCache(dbconfig.ArticleCacheSize, dbconfig.ArticleCacheExpiry)
		log.Printf("[DB]: Article cache initialized with size %d and expiry %s", dbconfig.ArticleCacheSize, dbconfig.ArticleCacheExpiry)

		db.WG.Add(1)
		go func() {
			defer db.WG.Done()
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					db.ArticleCache.Cleanup()
					db.publishCacheStats()
				case <-db.StopChan:
					return
				}
			}
		}()
	} else {
		log.Println("[DB]: Article cache is disabled")
	}

	log.Printf("[DB]: Database initialized at %s", dbconfig.Path)
	return db, nil
}

// publishCacheStats copies the article cache counters to the Prometheus gauges
func (db *Database) publishCacheStats() {
	if db.ArticleCache == nil {
		return
	}
	stats := db.ArticleCache.Stats()
	metrics.ArticleCacheEntries.Set(float64(stats["size"]))
	metrics.ArticleCacheBytes.Set(float64(stats["total_size"]))
	metrics.ArticleCacheLookups.WithLabelValues(metrics.CacheHit).Set(float64(stats["hits"]))
	metrics.ArticleCacheLookups.WithLabelValues(metrics.CacheMiss).Set(float64(stats["misses"]))
	metrics.ArticleCacheEvictions.Set(float64(stats["evictions"]))
}

// GetMainDB returns the main database connection for direct access
// This should only be used by specialized tools
func (db *Database) GetMainDB() *sql.DB {
	return db.mainDB
}

// Ping checks the connection
func (db *Database) Ping(ctx context.Context) error {
	return db.mainDB.PingContext(ctx)
}

// Shutdown stops background tasks and closes the connection pool
func (db *Database) Shutdown() error {
	db.stopOnce.Do(func() { close(db.StopChan) })
	db.WG.Wait()
	if err := db.mainDB.Close(); err != nil {
		return fmt.Errorf("failed to close main database: %w", err)
	}
	log.Printf("[DB]: Database closed")
	return nil
}

// Close implements io.Closer
func (db *Database) Close() error {
	return db.Shutdown()
}

// initMainDB initializes the main database connection
func (db *Database) initMainDB() error {
	dbPath := db.dbconfig.Path
	log.Printf("[DB]: Initializing main database at: %s", dbPath)

	dsn := dbPath
	if db.dbconfig.ReadOnly {
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database file not readable: %w", err)
		}
		dsn = "file:" + dbPath + "?mode=ro"
	} else if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// pragmas run from the connect hook so every pooled connection gets them
	pragmas := db.sqlitePragmas()
	mainDB := sql.OpenDB(sqliteConnector{
		dsn: dsn,
		driver: &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				for _, pragma := range pragmas {
					if _, err := conn.Exec(pragma, nil); err != nil {
						return fmt.Errorf("failed to execute pragma '%s': %w", pragma, err)
					}
				}
				return nil
			},
		},
	})

	// Configure connection pool
	mainDB.SetMaxOpenConns(db.dbconfig.MaxOpenConns)
	mainDB.SetMaxIdleConns(db.dbconfig.MaxIdleConns)
	mainDB.SetConnMaxLifetime(db.dbconfig.ConnMaxLifetime)

	// Test connection
	if err := mainDB.Ping(); err != nil {
		if cerr := mainDB.Close(); cerr != nil {
			return fmt.Errorf("failed to ping main database: %w; also failed to close mainDB: %v", err, cerr)
		}
		return fmt.Errorf("failed to ping main database: %w", err)
	}

	db.mainDB = mainDB
	return nil
}

// sqlitePragmas returns the per-connection pragmas for the configured file
func (db *Database) sqlitePragmas() []string {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = %d", db.dbconfig.CacheSize),
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 30000", // 30 seconds
	}
	if db.dbconfig.SyncMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA synchronous = %s", db.dbconfig.SyncMode))
	}
	if db.dbconfig.TempStore != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA temp_store = %s", db.dbconfig.TempStore))
	}
	if db.dbconfig.WALMode && !db.dbconfig.ReadOnly {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
		pragmas = append(pragmas, "PRAGMA wal_autocheckpoint = 1000")
	}
	return pragmas
}

// sqliteConnector opens connections through a driver carrying the connect hook
type sqliteConnector struct {
	dsn    string
	driver *sqlite3.SQLiteDriver
}

func (c sqliteConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c sqliteConnector) Driver() driver.Driver {
	return c.driver
}
