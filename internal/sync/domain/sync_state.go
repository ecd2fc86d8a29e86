package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/mokkoji/syncd/internal/shared/domain"
)

// PrimaryCalendarID is the external calendar ID used when a platform
// has a single default calendar or cannot enumerate collections.
const PrimaryCalendarID = "primary"

// SyncState tracks the durable incremental-sync cursor for one
// (user, connection, external calendar) triple. The triple is the unit
// of sync concurrency: at most one job mutates a given state at a time.
type SyncState struct {
	sharedDomain.BaseEntity
	userID             uuid.UUID
	connectionID       uuid.UUID
	externalCalendarID string
	deltaToken         string     // empty means no incremental cursor yet
	updatedMin         *time.Time // high-water mark of external_updated_at
	lastWindowStart    *time.Time
	lastWindowEnd      *time.Time
	syncFailures       int // consecutive failed syncs
}

// NewSyncState creates a fresh sync state with no cursor. States are
// created lazily on a triple's first sync.
func NewSyncState(userID, connectionID uuid.UUID, externalCalendarID string) *SyncState {
	return &SyncState{
		BaseEntity:         sharedDomain.NewBaseEntity(),
		userID:             userID,
		connectionID:       connectionID,
		externalCalendarID: externalCalendarID,
	}
}

// Getters
func (s *SyncState) UserID() uuid.UUID           { return s.userID }
func (s *SyncState) ConnectionID() uuid.UUID     { return s.connectionID }
func (s *SyncState) ExternalCalendarID() string  { return s.externalCalendarID }
func (s *SyncState) DeltaToken() string          { return s.deltaToken }
func (s *SyncState) UpdatedMin() *time.Time      { return s.updatedMin }
func (s *SyncState) LastWindowStart() *time.Time { return s.lastWindowStart }
func (s *SyncState) LastWindowEnd() *time.Time   { return s.lastWindowEnd }
func (s *SyncState) SyncFailures() int           { return s.syncFailures }

// HasDeltaToken returns true if an incremental cursor is available.
func (s *SyncState) HasDeltaToken() bool {
	return s.deltaToken != ""
}

// ClearDeltaToken drops the incremental cursor, forcing the next sync
// to run in window mode. Used when the provider rejects the token.
func (s *SyncState) ClearDeltaToken() {
	s.deltaToken = ""
	s.Touch()
}

// Advance records a successful fetch: the new delta token replaces the
// old one, updated_min only moves forward, and the window bounds are
// stored for the state query. Consecutive failures reset to zero.
func (s *SyncState) Advance(nextDeltaToken string, maxUpdatedAt *time.Time, windowStart, windowEnd time.Time) {
	s.deltaToken = nextDeltaToken
	if maxUpdatedAt != nil {
		if s.updatedMin == nil || maxUpdatedAt.After(*s.updatedMin) {
			t := maxUpdatedAt.UTC()
			s.updatedMin = &t
		}
	}
	ws := windowStart.UTC()
	we := windowEnd.UTC()
	s.lastWindowStart = &ws
	s.lastWindowEnd = &we
	s.syncFailures = 0
	s.Touch()
}

// MarkFailure increments the consecutive failure count.
func (s *SyncState) MarkFailure() {
	s.syncFailures++
	s.Touch()
}

// RehydrateSyncState recreates a sync state from persisted data.
func RehydrateSyncState(
	id uuid.UUID,
	userID, connectionID uuid.UUID,
	externalCalendarID string,
	deltaToken string,
	updatedMin, lastWindowStart, lastWindowEnd *time.Time,
	syncFailures int,
	createdAt, updatedAt time.Time,
) *SyncState {
	return &SyncState{
		BaseEntity:         sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		userID:             userID,
		connectionID:       connectionID,
		externalCalendarID: externalCalendarID,
		deltaToken:         deltaToken,
		updatedMin:         updatedMin,
		lastWindowStart:    lastWindowStart,
		lastWindowEnd:      lastWindowEnd,
		syncFailures:       syncFailures,
	}
}

// SyncStateRepository defines the interface for sync state persistence.
type SyncStateRepository interface {
	// Save persists a sync state (create or update).
	Save(ctx context.Context, state *SyncState) error

	// FindByTriple finds the state for one (user, connection, calendar).
	// Returns database.ErrNoRows semantics via the shared helper when absent.
	FindByTriple(ctx context.Context, userID, connectionID uuid.UUID, externalCalendarID string) (*SyncState, error)

	// FindByConnection finds all states for a connection.
	FindByConnection(ctx context.Context, connectionID uuid.UUID) ([]*SyncState, error)

	// FindPendingSync finds states whose last update is older than the
	// given age, for the background sweep. Never-synced states qualify.
	FindPendingSync(ctx context.Context, olderThan time.Duration, limit int) ([]*SyncState, error)

	// Delete removes a sync state.
	Delete(ctx context.Context, id uuid.UUID) error
}
