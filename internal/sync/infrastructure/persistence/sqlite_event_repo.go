package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

const sqliteEventColumns = `id, user_id, source_platform, external_calendar_id,
	external_event_id, title, description, start_utc, end_utc, all_day, location,
	recurrence_rule, attendees, external_updated_at, external_version, deleted,
	created_at, updated_at`

// SQLiteEventRepository persists normalized calendar events in SQLite.
type SQLiteEventRepository struct {
	conn database.Connection
}

// NewSQLiteEventRepository creates the repository.
func NewSQLiteEventRepository(conn database.Connection) *SQLiteEventRepository {
	return &SQLiteEventRepository{conn: conn}
}

// Save inserts or updates an event, keyed on the sync identity so the
// quadruple stays unique no matter which side created the row first.
func (r *SQLiteEventRepository) Save(ctx context.Context, event *domain.StoredEvent) error {
	attendees, err := encodeAttendees(event.Attendees())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (` + sqliteEventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, source_platform, external_calendar_id, external_event_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			start_utc = excluded.start_utc,
			end_utc = excluded.end_utc,
			all_day = excluded.all_day,
			location = excluded.location,
			recurrence_rule = excluded.recurrence_rule,
			attendees = excluded.attendees,
			external_updated_at = excluded.external_updated_at,
			external_version = excluded.external_version,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err = exec.Exec(ctx, query,
		event.ID().String(),
		event.UserID().String(),
		string(event.SourcePlatform()),
		event.ExternalCalendarID(),
		event.ExternalEventID(),
		event.Title(),
		event.Description(),
		sqliteTime(event.StartUTC()),
		sqliteNullTime(event.EndUTC()),
		event.AllDay(),
		event.Location(),
		event.RecurrenceRule(),
		attendees,
		sqliteNullTime(event.ExternalUpdatedAt()),
		event.ExternalVersion(),
		event.Deleted(),
		sqliteTime(event.CreatedAt()),
		sqliteTime(event.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// FindBySyncIdentity finds an event by its sync-unique quadruple.
func (r *SQLiteEventRepository) FindBySyncIdentity(ctx context.Context, userID uuid.UUID, platform domain.PlatformType, externalCalendarID, externalEventID string) (*domain.StoredEvent, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events
		WHERE user_id = ? AND source_platform = ? AND external_calendar_id = ? AND external_event_id = ?`

	exec := database.ExecutorFromContext(ctx, r.conn)
	return scanSQLiteEvent(exec.QueryRow(ctx, query, userID.String(), string(platform), externalCalendarID, externalEventID))
}

// FindByCalendar finds all live events for one calendar, earliest start
// first.
func (r *SQLiteEventRepository) FindByCalendar(ctx context.Context, userID uuid.UUID, platform domain.PlatformType, externalCalendarID string) ([]*domain.StoredEvent, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events
		WHERE user_id = ? AND source_platform = ? AND external_calendar_id = ? AND deleted = 0
		ORDER BY start_utc`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query, userID.String(), string(platform), externalCalendarID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*domain.StoredEvent
	for rows.Next() {
		event, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func scanSQLiteEvent(row database.Row) (*domain.StoredEvent, error) {
	var (
		id, userID, platform                string
		externalCalendarID, externalEventID string
		title                               string
		description, location, rrule        sql.NullString
		startUTC                            string
		endUTC, externalUpdatedAt           sql.NullString
		allDay, deleted                     bool
		attendeesRaw                        string
		externalVersion                     sql.NullString
		createdAt, updatedAt                string
	)
	err := row.Scan(&id, &userID, &platform, &externalCalendarID, &externalEventID,
		&title, &description, &startUTC, &endUTC, &allDay, &location, &rrule,
		&attendeesRaw, &externalUpdatedAt, &externalVersion, &deleted,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	eventID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	start, err := parseSQLiteTime(startUTC)
	if err != nil {
		return nil, err
	}
	end, err := parseSQLiteNullTime(endUTC)
	if err != nil {
		return nil, err
	}
	extUpdated, err := parseSQLiteNullTime(externalUpdatedAt)
	if err != nil {
		return nil, err
	}
	created, err := parseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}
	attendees, err := decodeAttendees(attendeesRaw)
	if err != nil {
		return nil, err
	}

	fields := domain.EventFields{
		Title:             title,
		Description:       description.String,
		StartUTC:          start,
		EndUTC:            end,
		AllDay:            allDay,
		Location:          location.String,
		RecurrenceRule:    rrule.String,
		Attendees:         attendees,
		ExternalUpdatedAt: extUpdated,
		ExternalVersion:   externalVersion.String,
	}

	return domain.RehydrateStoredEvent(
		eventID, uid, domain.PlatformType(platform),
		externalCalendarID, externalEventID,
		fields, deleted, created, updated,
	), nil
}
