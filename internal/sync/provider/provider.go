// Package provider defines the neutral calendar provider abstraction.
// Each adapter translates one vendor API into the shared event model;
// the sync engine never branches on adapter identity, only on the
// capability flags an adapter reports.
package provider

import (
	"context"
	"time"

	"github.com/mokkoji/syncd/internal/sync/domain"
)

// Capabilities describes what an adapter can do. Immutable per adapter.
type Capabilities struct {
	Read  bool
	Write bool
	Delta bool
}

// CalendarMeta identifies one calendar on the remote platform.
type CalendarMeta struct {
	ID      string
	Name    string
	Primary bool
}

// Event is a normalized, provider-neutral calendar event. All instants
// are UTC.
type Event struct {
	ExternalEventID    string
	ExternalCalendarID string
	Title              string
	Description        string
	StartUTC           time.Time
	EndUTC             *time.Time
	AllDay             bool
	Location           string
	RecurrenceRule     string // RFC 5545 RRULE line, opaque
	Attendees          []domain.Attendee
	ExternalUpdatedAt  *time.Time
	ExternalVersion    string
	Deleted            bool
}

// FetchQuery bounds a fetch. DeltaToken, when set, switches the adapter
// into incremental mode and the window bounds are ignored by providers
// that support it.
type FetchQuery struct {
	CalendarID string
	Since      time.Time
	Until      time.Time
	DeltaToken string
	UpdatedMin *time.Time
}

// FetchResult carries one fetch's events plus the next incremental
// cursor. MaxUpdatedAt is the largest external_updated_at observed.
type FetchResult struct {
	Events         []Event
	NextDeltaToken string
	MaxUpdatedAt   *time.Time
	HasMore        bool
}

// Provider is the adapter contract. Adapters are stateless beyond their
// HTTP client pool and safe for concurrent use. They never retry across
// calls; the engine owns the retry policy.
type Provider interface {
	// Name returns the platform this adapter serves.
	Name() domain.PlatformType

	// Capabilities returns the adapter's capability flags.
	Capabilities() Capabilities

	// ListCalendars enumerates the calendars visible to the token.
	ListCalendars(ctx context.Context, token string) ([]CalendarMeta, error)

	// FetchEvents returns events for one calendar, in UTC, in the order
	// the platform yields them.
	FetchEvents(ctx context.Context, token string, query FetchQuery) (*FetchResult, error)

	// UpsertEvent creates or updates one event and returns the remote's
	// view of it (ID, version, updated-at).
	UpsertEvent(ctx context.Context, token, calendarID string, event Event) (*Event, error)

	// DeleteEvent removes one event. Adapters that cannot delete return
	// an Unsupported error.
	DeleteEvent(ctx context.Context, token, calendarID, externalEventID string) error

	// Close releases the adapter's resources.
	Close() error
}
