package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/mokkoji/syncd/internal/shared/domain"
)

// Attendee is one participant on a calendar event.
type Attendee struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// EventFields holds the provider-mutable portion of a stored event.
// The sync identity (user, platform, calendar, external event ID) is
// fixed at creation and never changes.
type EventFields struct {
	Title             string
	Description       string
	StartUTC          time.Time
	EndUTC            *time.Time
	AllDay            bool
	Location          string
	RecurrenceRule    string
	Attendees         []Attendee
	ExternalUpdatedAt *time.Time
	ExternalVersion   string
}

// StoredEvent is a normalized calendar event persisted locally. Rows
// are unique on (user_id, source_platform, external_calendar_id,
// external_event_id). Deleted rows are tombstones, retained so stale
// fetches cannot resurrect an event.
type StoredEvent struct {
	sharedDomain.BaseEntity
	userID             uuid.UUID
	sourcePlatform     PlatformType
	externalCalendarID string
	externalEventID    string
	fields             EventFields
	deleted            bool
}

// NewStoredEvent creates a stored event from a remote fetch.
func NewStoredEvent(
	userID uuid.UUID,
	platform PlatformType,
	externalCalendarID, externalEventID string,
	fields EventFields,
) *StoredEvent {
	return &StoredEvent{
		BaseEntity:         sharedDomain.NewBaseEntity(),
		userID:             userID,
		sourcePlatform:     platform,
		externalCalendarID: externalCalendarID,
		externalEventID:    externalEventID,
		fields:             fields,
	}
}

// Getters
func (e *StoredEvent) UserID() uuid.UUID             { return e.userID }
func (e *StoredEvent) SourcePlatform() PlatformType  { return e.sourcePlatform }
func (e *StoredEvent) ExternalCalendarID() string    { return e.externalCalendarID }
func (e *StoredEvent) ExternalEventID() string       { return e.externalEventID }
func (e *StoredEvent) Title() string                 { return e.fields.Title }
func (e *StoredEvent) Description() string           { return e.fields.Description }
func (e *StoredEvent) StartUTC() time.Time           { return e.fields.StartUTC }
func (e *StoredEvent) EndUTC() *time.Time            { return e.fields.EndUTC }
func (e *StoredEvent) AllDay() bool                  { return e.fields.AllDay }
func (e *StoredEvent) Location() string              { return e.fields.Location }
func (e *StoredEvent) RecurrenceRule() string        { return e.fields.RecurrenceRule }
func (e *StoredEvent) ExternalUpdatedAt() *time.Time { return e.fields.ExternalUpdatedAt }
func (e *StoredEvent) ExternalVersion() string       { return e.fields.ExternalVersion }
func (e *StoredEvent) Deleted() bool                 { return e.deleted }

// Attendees returns a copy of the attendee list.
func (e *StoredEvent) Attendees() []Attendee {
	if e.fields.Attendees == nil {
		return nil
	}
	out := make([]Attendee, len(e.fields.Attendees))
	copy(out, e.fields.Attendees)
	return out
}

// SupersededBy implements the Last-Write-Wins rule: an incoming remote
// timestamp only wins with strict inequality. When either side lacks a
// timestamp the incoming event is applied (ties go to the stored row
// only when both timestamps are present, which keeps re-applying the
// same batch idempotent).
func (e *StoredEvent) SupersededBy(incomingUpdatedAt *time.Time) bool {
	if e.fields.ExternalUpdatedAt == nil || incomingUpdatedAt == nil {
		return true
	}
	return incomingUpdatedAt.After(*e.fields.ExternalUpdatedAt)
}

// ApplyRemote overwrites all mutable fields from a remote event and
// clears any tombstone.
func (e *StoredEvent) ApplyRemote(fields EventFields) {
	e.fields = fields
	e.deleted = false
	e.Touch()
}

// MarkDeleted turns the row into a tombstone.
func (e *StoredEvent) MarkDeleted() {
	e.deleted = true
	e.Touch()
}

// RehydrateStoredEvent recreates a stored event from persisted data.
func RehydrateStoredEvent(
	id uuid.UUID,
	userID uuid.UUID,
	platform PlatformType,
	externalCalendarID, externalEventID string,
	fields EventFields,
	deleted bool,
	createdAt, updatedAt time.Time,
) *StoredEvent {
	return &StoredEvent{
		BaseEntity:         sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		userID:             userID,
		sourcePlatform:     platform,
		externalCalendarID: externalCalendarID,
		externalEventID:    externalEventID,
		fields:             fields,
		deleted:            deleted,
	}
}

// EventRepository defines the interface for stored event persistence.
type EventRepository interface {
	// Save persists an event (create or update).
	Save(ctx context.Context, event *StoredEvent) error

	// FindBySyncIdentity finds an event by its sync-unique quadruple.
	FindBySyncIdentity(ctx context.Context, userID uuid.UUID, platform PlatformType, externalCalendarID, externalEventID string) (*StoredEvent, error)

	// FindByCalendar finds all live (non-tombstone) events for one calendar.
	FindByCalendar(ctx context.Context, userID uuid.UUID, platform PlatformType, externalCalendarID string) ([]*StoredEvent, error)
}
