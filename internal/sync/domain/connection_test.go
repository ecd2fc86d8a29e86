package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/sync/domain"
)

func TestNewExternalConnection(t *testing.T) {
	userID := uuid.New()

	conn, err := domain.NewExternalConnection(userID, domain.PlatformGoogle, "ciphertext")

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, conn.ID())
	assert.Equal(t, userID, conn.UserID())
	assert.Equal(t, domain.PlatformGoogle, conn.PlatformType())
	assert.True(t, conn.SyncEnabled())
	assert.Equal(t, domain.SyncStatusIdle, conn.SyncStatus())
	assert.True(t, conn.LastSyncAt().IsZero())
	assert.Empty(t, conn.LastError())
}

func TestNewExternalConnection_Validation(t *testing.T) {
	tests := []struct {
		name     string
		userID   uuid.UUID
		platform domain.PlatformType
		token    string
		wantErr  error
	}{
		{"empty user", uuid.Nil, domain.PlatformGoogle, "x", domain.ErrEmptyUserID},
		{"bad platform", uuid.New(), domain.PlatformType("outlook"), "x", domain.ErrInvalidPlatform},
		{"empty credential", uuid.New(), domain.PlatformNaver, "  ", domain.ErrEmptyCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewExternalConnection(tt.userID, tt.platform, tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExternalConnection_MarkSynced(t *testing.T) {
	conn, err := domain.NewExternalConnection(uuid.New(), domain.PlatformNaver, "ciphertext")
	require.NoError(t, err)

	conn.MarkSyncFailed("boom")
	assert.Equal(t, domain.SyncStatusError, conn.SyncStatus())
	assert.Equal(t, "boom", conn.LastError())

	now := time.Now()
	conn.MarkSynced(now)

	assert.Equal(t, domain.SyncStatusIdle, conn.SyncStatus())
	assert.Equal(t, now.UTC(), conn.LastSyncAt())
	assert.Empty(t, conn.LastError())
}

func TestExternalConnection_MarkSyncFailed_PreservesLastSyncAt(t *testing.T) {
	conn, err := domain.NewExternalConnection(uuid.New(), domain.PlatformGoogle, "ciphertext")
	require.NoError(t, err)

	syncedAt := time.Now().Add(-time.Hour)
	conn.MarkSynced(syncedAt)
	conn.MarkSyncFailed("quota exceeded")

	assert.Equal(t, domain.SyncStatusError, conn.SyncStatus())
	assert.Equal(t, "quota exceeded", conn.LastError())
	assert.Equal(t, syncedAt.UTC(), conn.LastSyncAt())
}

func TestExternalConnection_OwnedBy(t *testing.T) {
	userID := uuid.New()
	conn, err := domain.NewExternalConnection(userID, domain.PlatformGoogle, "ciphertext")
	require.NoError(t, err)

	assert.True(t, conn.OwnedBy(userID))
	assert.False(t, conn.OwnedBy(uuid.New()))
}

func TestPlatformType_IsValid(t *testing.T) {
	for _, p := range domain.AllPlatformTypes() {
		assert.True(t, p.IsValid(), p)
	}
	assert.False(t, domain.PlatformType("outlook").IsValid())
	assert.False(t, domain.PlatformType("").IsValid())
}
