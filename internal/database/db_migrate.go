package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var EmbeddedMigrationsFS embed.FS

// MigrationFile represents a migration file with its metadata
type MigrationFile struct {
	FileName    string
	Version     int
	Description string
	FilePath    string
}

// Migrate applies all pending embedded migrations to the main database
func (db *Database) Migrate(ctx context.Context) error {
	if err := ensureMigrationsTable(ctx, db.mainDB); err != nil {
		return err
	}

	migrations, err := getEmbeddedMigrationFiles()
	if err != nil {
		return err
	}

	applied, err := getAppliedMigrations(ctx, db.mainDB)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.FileName] {
			continue
		}
		content, err := fs.ReadFile(EmbeddedMigrationsFS, m.FilePath)
		if err != nil {
			return fmt.Errorf("failed to read embedded migration file %s: %w", m.FilePath, err)
		}
		err = retryableTransactionExec(ctx, db.mainDB, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", m.FileName, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES (?)`, m.FileName); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", m.FileName, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Printf("[DB]: Applied migration %s (%s)", m.FileName, m.Description)
	}
	return nil
}

// parseMigrationFileName parses e.g. 0001_main_articles_badges.sql
func parseMigrationFileName(fileName string) (*MigrationFile, error) {
	if !strings.HasSuffix(fileName, ".sql") {
		return nil, fmt.Errorf("migration file must have .sql extension: %s", fileName)
	}
	name := strings.TrimSuffix(fileName, ".sql")
	parts := strings.SplitN(name, "_", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid migration file name format: %s (expected format: 0001_main_description.sql)", fileName)
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid version number in migration file: %s", fileName)
	}
	if parts[1] != "main" {
		return nil, fmt.Errorf("unknown migration type in filename %s: %s", fileName, parts[1])
	}

	return &MigrationFile{
		FileName:    fileName,
		Version:     version,
		Description: parts[2],
		FilePath:    path.Join("migrations", fileName),
	}, nil
}

// getEmbeddedMigrationFiles reads and parses all migration files, sorted by version
func getEmbeddedMigrationFiles() ([]*MigrationFile, error) {
	files, err := fs.ReadDir(EmbeddedMigrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var migrations []*MigrationFile
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		migration, err := parseMigrationFileName(f.Name())
		if err != nil {
			log.Printf("[DB]: Warning: skipping invalid migration file %s: %v", f.Name(), err)
			continue
		}
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := retryableExecContext(ctx, db, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// getAppliedMigrations returns a map of applied migration filenames
func getAppliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := retryableQueryContext(ctx, db, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fname string
		if err := rows.Scan(&fname); err != nil {
			return nil, fmt.Errorf("failed to scan migration filename: %w", err)
		}
		applied[fname] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}
	return applied, nil
}
