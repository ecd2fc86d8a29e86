package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/shared/infrastructure/database/sqlite"
	"github.com/mokkoji/syncd/internal/shared/infrastructure/migrations"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

func setupTestDB(t *testing.T) database.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "syncd_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, migrations.Run(ctx, conn))
	return conn
}

func newTestConnection(t *testing.T, userID uuid.UUID) *domain.ExternalConnection {
	t.Helper()
	conn, err := domain.NewExternalConnection(userID, domain.PlatformGoogle, "encrypted-blob")
	require.NoError(t, err)
	return conn
}
