package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/mokkoji/syncd/internal/shared/domain"
)

const (
	// AggregateTypeConnection is the aggregate type for external connections.
	AggregateTypeConnection = "external_connection"

	// Event routing keys
	RoutingKeySyncCompleted = "sync.completed"
	RoutingKeySyncFailed    = "sync.failed"
)

// SyncCompletedEvent is published after a calendar sync commits.
type SyncCompletedEvent struct {
	sharedDomain.BaseEvent
	UserID             uuid.UUID     `json:"user_id"`
	ConnectionID       uuid.UUID     `json:"connection_id"`
	Platform           PlatformType  `json:"platform"`
	ExternalCalendarID string        `json:"external_calendar_id"`
	Created            int           `json:"created"`
	Updated            int           `json:"updated"`
	Deleted            int           `json:"deleted"`
	Skipped            int           `json:"skipped"`
	Duration           time.Duration `json:"duration_ms"`
}

// NewSyncCompletedEvent creates a new sync completed event.
func NewSyncCompletedEvent(userID, connectionID uuid.UUID, platform PlatformType, externalCalendarID string, created, updated, deleted, skipped int, duration time.Duration) SyncCompletedEvent {
	return SyncCompletedEvent{
		BaseEvent:          sharedDomain.NewBaseEvent(connectionID, AggregateTypeConnection, RoutingKeySyncCompleted),
		UserID:             userID,
		ConnectionID:       connectionID,
		Platform:           platform,
		ExternalCalendarID: externalCalendarID,
		Created:            created,
		Updated:            updated,
		Deleted:            deleted,
		Skipped:            skipped,
		Duration:           duration,
	}
}

// SyncFailedEvent is published after a calendar sync gives up.
type SyncFailedEvent struct {
	sharedDomain.BaseEvent
	UserID             uuid.UUID    `json:"user_id"`
	ConnectionID       uuid.UUID    `json:"connection_id"`
	Platform           PlatformType `json:"platform"`
	ExternalCalendarID string       `json:"external_calendar_id"`
	Reason             string       `json:"reason"`
}

// NewSyncFailedEvent creates a new sync failed event.
func NewSyncFailedEvent(userID, connectionID uuid.UUID, platform PlatformType, externalCalendarID, reason string) SyncFailedEvent {
	return SyncFailedEvent{
		BaseEvent:          sharedDomain.NewBaseEvent(connectionID, AggregateTypeConnection, RoutingKeySyncFailed),
		UserID:             userID,
		ConnectionID:       connectionID,
		Platform:           platform,
		ExternalCalendarID: externalCalendarID,
		Reason:             reason,
	}
}
