package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

const sqliteSyncStateColumns = `id, user_id, connection_id, external_calendar_id,
	delta_token, updated_min, last_window_start, last_window_end, sync_failures,
	created_at, updated_at`

// SQLiteSyncStateRepository persists per-calendar sync cursors in SQLite.
type SQLiteSyncStateRepository struct {
	conn database.Connection
}

// NewSQLiteSyncStateRepository creates the repository.
func NewSQLiteSyncStateRepository(conn database.Connection) *SQLiteSyncStateRepository {
	return &SQLiteSyncStateRepository{conn: conn}
}

// Save inserts or updates a sync state. The upsert is keyed on the
// triple so the lazy first-sync create and later advances share a path.
func (r *SQLiteSyncStateRepository) Save(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_state (` + sqliteSyncStateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, connection_id, external_calendar_id) DO UPDATE SET
			delta_token = excluded.delta_token,
			updated_min = excluded.updated_min,
			last_window_start = excluded.last_window_start,
			last_window_end = excluded.last_window_end,
			sync_failures = excluded.sync_failures,
			updated_at = excluded.updated_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, query,
		state.ID().String(),
		state.UserID().String(),
		state.ConnectionID().String(),
		state.ExternalCalendarID(),
		state.DeltaToken(),
		sqliteNullTime(state.UpdatedMin()),
		sqliteNullTime(state.LastWindowStart()),
		sqliteNullTime(state.LastWindowEnd()),
		state.SyncFailures(),
		sqliteTime(state.CreatedAt()),
		sqliteTime(state.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

// FindByTriple finds the state for one (user, connection, calendar).
func (r *SQLiteSyncStateRepository) FindByTriple(ctx context.Context, userID, connectionID uuid.UUID, externalCalendarID string) (*domain.SyncState, error) {
	query := `SELECT ` + sqliteSyncStateColumns + ` FROM sync_state
		WHERE user_id = ? AND connection_id = ? AND external_calendar_id = ?`

	exec := database.ExecutorFromContext(ctx, r.conn)
	return scanSQLiteSyncState(exec.QueryRow(ctx, query, userID.String(), connectionID.String(), externalCalendarID))
}

// FindByConnection finds all states for a connection.
func (r *SQLiteSyncStateRepository) FindByConnection(ctx context.Context, connectionID uuid.UUID) ([]*domain.SyncState, error) {
	query := `SELECT ` + sqliteSyncStateColumns + ` FROM sync_state
		WHERE connection_id = ? ORDER BY external_calendar_id`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query, connectionID.String())
	if err != nil {
		return nil, fmt.Errorf("query sync states: %w", err)
	}
	return collectSQLiteSyncStates(rows)
}

// FindPendingSync finds states untouched for longer than the given age,
// oldest first.
func (r *SQLiteSyncStateRepository) FindPendingSync(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.SyncState, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `SELECT ` + sqliteSyncStateColumns + ` FROM sync_state
		WHERE updated_at < ? ORDER BY updated_at ASC LIMIT ?`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query, sqliteTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending sync states: %w", err)
	}
	return collectSQLiteSyncStates(rows)
}

// Delete removes a sync state.
func (r *SQLiteSyncStateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	result, err := exec.Exec(ctx, `DELETE FROM sync_state WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete sync state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return database.ErrNoRows
	}
	return nil
}

func collectSQLiteSyncStates(rows database.Rows) ([]*domain.SyncState, error) {
	defer rows.Close()

	var out []*domain.SyncState
	for rows.Next() {
		state, err := scanSQLiteSyncState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

func scanSQLiteSyncState(row database.Row) (*domain.SyncState, error) {
	var (
		id, userID, connectionID           string
		externalCalendarID                 string
		deltaToken                         sql.NullString
		updatedMin, windowStart, windowEnd sql.NullString
		syncFailures                       int
		createdAt, updatedAt               string
	)
	err := row.Scan(&id, &userID, &connectionID, &externalCalendarID,
		&deltaToken, &updatedMin, &windowStart, &windowEnd, &syncFailures,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	stateID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse state id: %w", err)
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	connID, err := uuid.Parse(connectionID)
	if err != nil {
		return nil, fmt.Errorf("parse connection id: %w", err)
	}
	created, err := parseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}
	uMin, err := parseSQLiteNullTime(updatedMin)
	if err != nil {
		return nil, err
	}
	wStart, err := parseSQLiteNullTime(windowStart)
	if err != nil {
		return nil, err
	}
	wEnd, err := parseSQLiteNullTime(windowEnd)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateSyncState(
		stateID, uid, connID, externalCalendarID,
		deltaToken.String, uMin, wStart, wEnd, syncFailures,
		created, updated,
	), nil
}
