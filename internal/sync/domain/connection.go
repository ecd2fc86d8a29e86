package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/mokkoji/syncd/internal/shared/domain"
)

// Domain errors for ExternalConnection validation.
var (
	ErrEmptyUserID     = errors.New("user ID cannot be empty")
	ErrInvalidPlatform = errors.New("invalid platform type")
	ErrEmptyCredential = errors.New("encrypted credential cannot be empty")
)

// SyncStatus represents the health of a connection's sync loop.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

// IsValid returns true if the status is recognized.
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusIdle, SyncStatusSyncing, SyncStatusError:
		return true
	default:
		return false
	}
}

// ExternalConnection represents a user's authorized link to an external
// calendar platform. The credential blob is opaque to the sync engine;
// only the token codec can read it.
type ExternalConnection struct {
	sharedDomain.BaseEntity
	userID               uuid.UUID
	platformType         PlatformType
	accessTokenEncrypted string
	syncEnabled          bool
	syncStatus           SyncStatus
	lastSyncAt           time.Time
	lastError            string
}

// NewExternalConnection creates a new connection in the idle state.
func NewExternalConnection(userID uuid.UUID, platform PlatformType, accessTokenEncrypted string) (*ExternalConnection, error) {
	if userID == uuid.Nil {
		return nil, ErrEmptyUserID
	}
	if !platform.IsValid() {
		return nil, ErrInvalidPlatform
	}
	if strings.TrimSpace(accessTokenEncrypted) == "" {
		return nil, ErrEmptyCredential
	}

	return &ExternalConnection{
		BaseEntity:           sharedDomain.NewBaseEntity(),
		userID:               userID,
		platformType:         platform,
		accessTokenEncrypted: accessTokenEncrypted,
		syncEnabled:          true,
		syncStatus:           SyncStatusIdle,
	}, nil
}

// Getters
func (c *ExternalConnection) UserID() uuid.UUID            { return c.userID }
func (c *ExternalConnection) PlatformType() PlatformType   { return c.platformType }
func (c *ExternalConnection) AccessTokenEncrypted() string { return c.accessTokenEncrypted }
func (c *ExternalConnection) SyncEnabled() bool            { return c.syncEnabled }
func (c *ExternalConnection) SyncStatus() SyncStatus       { return c.syncStatus }
func (c *ExternalConnection) LastSyncAt() time.Time        { return c.lastSyncAt }
func (c *ExternalConnection) LastError() string            { return c.lastError }

// OwnedBy returns true if the connection belongs to the given user.
func (c *ExternalConnection) OwnedBy(userID uuid.UUID) bool {
	return c.userID == userID
}

// SetSyncEnabled enables or disables sync for this connection.
func (c *ExternalConnection) SetSyncEnabled(enabled bool) {
	if c.syncEnabled != enabled {
		c.syncEnabled = enabled
		c.Touch()
	}
}

// UpdateCredential replaces the encrypted credential blob.
func (c *ExternalConnection) UpdateCredential(accessTokenEncrypted string) error {
	if strings.TrimSpace(accessTokenEncrypted) == "" {
		return ErrEmptyCredential
	}
	c.accessTokenEncrypted = accessTokenEncrypted
	c.Touch()
	return nil
}

// MarkSyncing records that a sync job has started.
func (c *ExternalConnection) MarkSyncing() {
	c.syncStatus = SyncStatusSyncing
	c.Touch()
}

// MarkSynced records a successful sync. The error is cleared and the
// last sync time advances.
func (c *ExternalConnection) MarkSynced(at time.Time) {
	c.syncStatus = SyncStatusIdle
	c.lastSyncAt = at.UTC()
	c.lastError = ""
	c.Touch()
}

// MarkSyncFailed records a failed sync. The previous last sync time is
// preserved so clients can still see when data was last fresh.
func (c *ExternalConnection) MarkSyncFailed(message string) {
	c.syncStatus = SyncStatusError
	c.lastError = message
	c.Touch()
}

// RehydrateExternalConnection recreates a connection from persisted data.
func RehydrateExternalConnection(
	id uuid.UUID,
	userID uuid.UUID,
	platform PlatformType,
	accessTokenEncrypted string,
	syncEnabled bool,
	syncStatus SyncStatus,
	lastSyncAt time.Time,
	lastError string,
	createdAt, updatedAt time.Time,
) *ExternalConnection {
	return &ExternalConnection{
		BaseEntity:           sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		userID:               userID,
		platformType:         platform,
		accessTokenEncrypted: accessTokenEncrypted,
		syncEnabled:          syncEnabled,
		syncStatus:           syncStatus,
		lastSyncAt:           lastSyncAt,
		lastError:            lastError,
	}
}

// ConnectionRepository defines the interface for connection persistence.
type ConnectionRepository interface {
	// Save persists a connection (create or update).
	Save(ctx context.Context, conn *ExternalConnection) error

	// FindByID finds a connection by ID.
	FindByID(ctx context.Context, id uuid.UUID) (*ExternalConnection, error)

	// FindByUser finds all connections for a user.
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*ExternalConnection, error)

	// FindSyncEnabled finds all connections with sync enabled.
	FindSyncEnabled(ctx context.Context) ([]*ExternalConnection, error)

	// Delete removes a connection. Sync states cascade at the schema level.
	Delete(ctx context.Context, id uuid.UUID) error
}
