package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

func TestSQLiteConnectionRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteConnectionRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	conn := newTestConnection(t, userID)
	require.NoError(t, repo.Save(ctx, conn))

	found, err := repo.FindByID(ctx, conn.ID())
	require.NoError(t, err)
	assert.Equal(t, conn.ID(), found.ID())
	assert.Equal(t, userID, found.UserID())
	assert.Equal(t, domain.PlatformGoogle, found.PlatformType())
	assert.Equal(t, "encrypted-blob", found.AccessTokenEncrypted())
	assert.True(t, found.SyncEnabled())
	assert.Equal(t, domain.SyncStatusIdle, found.SyncStatus())
	assert.True(t, found.LastSyncAt().IsZero())
}

func TestSQLiteConnectionRepository_UpdateHealth(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteConnectionRepository(db)
	ctx := context.Background()

	conn := newTestConnection(t, uuid.New())
	require.NoError(t, repo.Save(ctx, conn))

	syncedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conn.MarkSynced(syncedAt)
	require.NoError(t, repo.Save(ctx, conn))

	found, err := repo.FindByID(ctx, conn.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusIdle, found.SyncStatus())
	assert.Equal(t, syncedAt, found.LastSyncAt())
	assert.Empty(t, found.LastError())

	conn.MarkSyncFailed("boom")
	require.NoError(t, repo.Save(ctx, conn))

	found, err = repo.FindByID(ctx, conn.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusError, found.SyncStatus())
	assert.Equal(t, "boom", found.LastError())
	// Failure preserves the last successful sync time.
	assert.Equal(t, syncedAt, found.LastSyncAt())
}

func TestSQLiteConnectionRepository_FindByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteConnectionRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.True(t, database.IsNoRows(err))
}

func TestSQLiteConnectionRepository_FindSyncEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteConnectionRepository(db)
	ctx := context.Background()

	enabled := newTestConnection(t, uuid.New())
	require.NoError(t, repo.Save(ctx, enabled))

	disabled := newTestConnection(t, uuid.New())
	disabled.SetSyncEnabled(false)
	require.NoError(t, repo.Save(ctx, disabled))

	found, err := repo.FindSyncEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, enabled.ID(), found[0].ID())
}

func TestSQLiteConnectionRepository_DeleteCascadesSyncState(t *testing.T) {
	db := setupTestDB(t)
	connRepo := NewSQLiteConnectionRepository(db)
	stateRepo := NewSQLiteSyncStateRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	conn := newTestConnection(t, userID)
	require.NoError(t, connRepo.Save(ctx, conn))

	state := domain.NewSyncState(userID, conn.ID(), "cal-1")
	require.NoError(t, stateRepo.Save(ctx, state))

	require.NoError(t, connRepo.Delete(ctx, conn.ID()))

	_, err := connRepo.FindByID(ctx, conn.ID())
	assert.True(t, database.IsNoRows(err))

	_, err = stateRepo.FindByTriple(ctx, userID, conn.ID(), "cal-1")
	assert.True(t, database.IsNoRows(err))
}

func TestSQLiteConnectionRepository_Delete_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteConnectionRepository(db)

	err := repo.Delete(context.Background(), uuid.New())
	assert.True(t, database.IsNoRows(err))
}
