// Package migrations embeds and applies the sync schema migrations.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// Run executes all pending migrations for the connection's driver.
func Run(ctx context.Context, conn database.Connection) error {
	switch conn.Driver() {
	case database.DriverSQLite:
		return apply(ctx, conn, sqliteFS, "sqlite", ".up.sql")
	case database.DriverPostgres:
		return apply(ctx, conn, postgresFS, "postgres", ".up.sql")
	default:
		return fmt.Errorf("no migrations for driver %q", conn.Driver())
	}
}

// Rollback reverses all migrations in descending order.
func Rollback(ctx context.Context, conn database.Connection) error {
	switch conn.Driver() {
	case database.DriverSQLite:
		return applyReverse(ctx, conn, sqliteFS, "sqlite", ".down.sql")
	case database.DriverPostgres:
		return applyReverse(ctx, conn, postgresFS, "postgres", ".down.sql")
	default:
		return fmt.Errorf("no migrations for driver %q", conn.Driver())
	}
}

func apply(ctx context.Context, exec database.Executor, fsys embed.FS, dir, suffix string) error {
	files, err := list(fsys, dir, suffix)
	if err != nil {
		return err
	}
	return execute(ctx, exec, fsys, dir, files)
}

func applyReverse(ctx context.Context, exec database.Executor, fsys embed.FS, dir, suffix string) error {
	files, err := list(fsys, dir, suffix)
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return execute(ctx, exec, fsys, dir, files)
}

func list(fsys embed.FS, dir, suffix string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), suffix) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func execute(ctx context.Context, exec database.Executor, fsys embed.FS, dir string, files []string) error {
	for _, file := range files {
		migration, err := fsys.ReadFile(dir + "/" + file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		// All statements are IF (NOT) EXISTS, so re-running is safe.
		if _, err := exec.Exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}
	return nil
}
