// Package persistence implements the sync repositories for SQLite and
// PostgreSQL. All repositories resolve their executor from the context
// so batches join an enclosing transaction transparently.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mokkoji/syncd/internal/sync/domain"
)

// SQLite stores instants as RFC 3339 text; Postgres uses TIMESTAMPTZ
// natively.
const sqliteTimeLayout = time.RFC3339Nano

func encodeAttendees(attendees []domain.Attendee) (string, error) {
	if len(attendees) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(attendees)
	if err != nil {
		return "", fmt.Errorf("encode attendees: %w", err)
	}
	return string(raw), nil
}

func decodeAttendees(raw string) ([]domain.Attendee, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var attendees []domain.Attendee
	if err := json.Unmarshal([]byte(raw), &attendees); err != nil {
		return nil, fmt.Errorf("decode attendees: %w", err)
	}
	return attendees, nil
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// sqliteNullTime encodes an optional instant, mapping nil to NULL.
func sqliteNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return sqliteTime(*t)
}

// sqliteZeroNullTime maps the zero time to NULL.
func sqliteZeroNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return sqliteTime(t)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseSQLiteNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseSQLiteTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// pgNullTime maps the zero time to NULL for Postgres binds.
func pgNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
