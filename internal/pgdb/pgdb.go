// Package pgdb is the PostgreSQL backend of the article store. It mirrors
// internal/database method for method so the web server can run on either.
package pgdb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxIface is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it.
type PgxIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PoolConfig holds tunable parameters for the connection pool.
type PoolConfig struct {
	MaxConns int
	MinConns int
	ReadOnly bool // no schema changes, sessions default to read only transactions
}

// Store serves articles from PostgreSQL
type Store struct {
	pool PgxIface
}

// NewStore wraps an existing pool
func NewStore(pool PgxIface) *Store {
	return &Store{pool: pool}
}

// Connect creates a pool for dsn, pings it and applies the schema unless
// opts.ReadOnly is set.
func Connect(ctx context.Context, dsn string, opts PoolConfig) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = int32(opts.MaxConns)
	} else {
		config.MaxConns = 10
	}
	if opts.MinConns > 0 {
		config.MinConns = int32(opts.MinConns)
	}
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	if opts.ReadOnly {
		config.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := NewStore(pool)
	if !opts.ReadOnly {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	log.Printf("[PGDB]: Connected (max conns %d, read only %t)", config.MaxConns, opts.ReadOnly)
	return s, nil
}

// Migrate creates the tables if they do not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("database connection not available")
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS badge (
		id_badge BIGINT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS article (
		id_article BIGINT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		intro TEXT,
		body TEXT,
		date TEXT NOT NULL DEFAULT '',
		reading_time INTEGER,
		photo_article TEXT NOT NULL DEFAULT '',
		id_badge BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_article_badge ON article(id_badge)`,
	`CREATE TABLE IF NOT EXISTS article_views (
		id_article BIGINT PRIMARY KEY REFERENCES article(id_article) ON DELETE CASCADE,
		views BIGINT NOT NULL DEFAULT 0,
		last_viewed TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
