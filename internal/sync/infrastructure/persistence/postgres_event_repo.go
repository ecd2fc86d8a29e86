package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

const pgEventColumns = `id, user_id, source_platform, external_calendar_id,
	external_event_id, title, description, start_utc, end_utc, all_day, location,
	recurrence_rule, attendees, external_updated_at, external_version, deleted,
	created_at, updated_at`

// PostgresEventRepository persists normalized calendar events in
// Postgres.
type PostgresEventRepository struct {
	conn database.Connection
}

// NewPostgresEventRepository creates the repository.
func NewPostgresEventRepository(conn database.Connection) *PostgresEventRepository {
	return &PostgresEventRepository{conn: conn}
}

// Save inserts or updates an event, keyed on the sync identity.
func (r *PostgresEventRepository) Save(ctx context.Context, event *domain.StoredEvent) error {
	attendees, err := encodeAttendees(event.Attendees())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (` + pgEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT ON CONSTRAINT uq_events_sync_identity DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			start_utc = EXCLUDED.start_utc,
			end_utc = EXCLUDED.end_utc,
			all_day = EXCLUDED.all_day,
			location = EXCLUDED.location,
			recurrence_rule = EXCLUDED.recurrence_rule,
			attendees = EXCLUDED.attendees,
			external_updated_at = EXCLUDED.external_updated_at,
			external_version = EXCLUDED.external_version,
			deleted = EXCLUDED.deleted,
			updated_at = EXCLUDED.updated_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err = exec.Exec(ctx, query,
		event.ID(),
		event.UserID(),
		string(event.SourcePlatform()),
		event.ExternalCalendarID(),
		event.ExternalEventID(),
		event.Title(),
		event.Description(),
		event.StartUTC().UTC(),
		utcOrNil(event.EndUTC()),
		event.AllDay(),
		event.Location(),
		event.RecurrenceRule(),
		attendees,
		utcOrNil(event.ExternalUpdatedAt()),
		event.ExternalVersion(),
		event.Deleted(),
		event.CreatedAt().UTC(),
		event.UpdatedAt().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// FindBySyncIdentity finds an event by its sync-unique quadruple.
func (r *PostgresEventRepository) FindBySyncIdentity(ctx context.Context, userID uuid.UUID, platform domain.PlatformType, externalCalendarID, externalEventID string) (*domain.StoredEvent, error) {
	query := `SELECT ` + pgEventColumns + ` FROM events
		WHERE user_id = $1 AND source_platform = $2 AND external_calendar_id = $3 AND external_event_id = $4`

	exec := database.ExecutorFromContext(ctx, r.conn)
	return scanPostgresEvent(exec.QueryRow(ctx, query, userID, string(platform), externalCalendarID, externalEventID))
}

// FindByCalendar finds all live events for one calendar, earliest start
// first.
func (r *PostgresEventRepository) FindByCalendar(ctx context.Context, userID uuid.UUID, platform domain.PlatformType, externalCalendarID string) ([]*domain.StoredEvent, error) {
	query := `SELECT ` + pgEventColumns + ` FROM events
		WHERE user_id = $1 AND source_platform = $2 AND external_calendar_id = $3 AND NOT deleted
		ORDER BY start_utc`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query, userID, string(platform), externalCalendarID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*domain.StoredEvent
	for rows.Next() {
		event, err := scanPostgresEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func scanPostgresEvent(row database.Row) (*domain.StoredEvent, error) {
	var (
		id, userID                          uuid.UUID
		platform                            string
		externalCalendarID, externalEventID string
		title                               string
		description, location, rrule        *string
		startUTC                            time.Time
		endUTC, externalUpdatedAt           *time.Time
		allDay, deleted                     bool
		attendeesRaw                        string
		externalVersion                     *string
		createdAt, updatedAt                time.Time
	)
	err := row.Scan(&id, &userID, &platform, &externalCalendarID, &externalEventID,
		&title, &description, &startUTC, &endUTC, &allDay, &location, &rrule,
		&attendeesRaw, &externalUpdatedAt, &externalVersion, &deleted,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	attendees, err := decodeAttendees(attendeesRaw)
	if err != nil {
		return nil, err
	}

	fields := domain.EventFields{
		Title:             title,
		Description:       strOrEmpty(description),
		StartUTC:          startUTC.UTC(),
		EndUTC:            utcOrNil(endUTC),
		AllDay:            allDay,
		Location:          strOrEmpty(location),
		RecurrenceRule:    strOrEmpty(rrule),
		Attendees:         attendees,
		ExternalUpdatedAt: utcOrNil(externalUpdatedAt),
		ExternalVersion:   strOrEmpty(externalVersion),
	}

	return domain.RehydrateStoredEvent(
		id, userID, domain.PlatformType(platform),
		externalCalendarID, externalEventID,
		fields, deleted, createdAt.UTC(), updatedAt.UTC(),
	), nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
