package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds database configuration.
type Config struct {
	// Driver specifies the database driver to use.
	// If empty or "auto", it will be detected from the URL.
	Driver Driver

	// URL is the connection string for PostgreSQL.
	URL string

	// SQLitePath is the path to the SQLite database file.
	// Defaults to ~/.mokkoji/sync.db
	SQLitePath string

	// MaxConns is the maximum number of connections (PostgreSQL only).
	MaxConns int
}

// NewConnection creates a database connection based on configuration.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}

	switch driver {
	case DriverPostgres:
		return newPostgresConnection(ctx, cfg)
	case DriverSQLite:
		return newSQLiteConnection(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// DefaultSQLitePath returns the default SQLite database path.
func DefaultSQLitePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".mokkoji", "sync.db")
}

// EnsureDirectory creates the parent directory for a file path if it doesn't exist.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// Driver factories are registered from their own packages so importing a
// binary only links the drivers it needs.
var newPostgresConnection func(ctx context.Context, cfg Config) (Connection, error)
var newSQLiteConnection func(ctx context.Context, cfg Config) (Connection, error)

// RegisterPostgresDriver registers the PostgreSQL connection factory.
func RegisterPostgresDriver(fn func(ctx context.Context, cfg Config) (Connection, error)) {
	newPostgresConnection = fn
}

// RegisterSQLiteDriver registers the SQLite connection factory.
func RegisterSQLiteDriver(fn func(ctx context.Context, cfg Config) (Connection, error)) {
	newSQLiteConnection = fn
}
