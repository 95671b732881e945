package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// DB wraps sqlx.DB
type DB struct {
	*sqlx.DB
	postgres bool
}

// New creates a new database connection. A postgres:// URL selects
// PostgreSQL, anything else is treated as a SQLite file path.
func New(url string) (*DB, error) {
	if isPostgresURL(url) {
		db, err := sqlx.Connect("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return &DB{DB: db, postgres: true}, nil
	}

	// Ensure directory exists
	dir := filepath.Dir(url)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Connect with WAL mode and foreign keys enabled
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", url)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.postgres {
		schema = postgresSchema
	}
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func isPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}
