package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

const pgSyncStateColumns = `id, user_id, connection_id, external_calendar_id,
	delta_token, updated_min, last_window_start, last_window_end, sync_failures,
	created_at, updated_at`

// PostgresSyncStateRepository persists per-calendar sync cursors in
// Postgres.
type PostgresSyncStateRepository struct {
	conn database.Connection
}

// NewPostgresSyncStateRepository creates the repository.
func NewPostgresSyncStateRepository(conn database.Connection) *PostgresSyncStateRepository {
	return &PostgresSyncStateRepository{conn: conn}
}

// Save inserts or updates a sync state, keyed on the triple.
func (r *PostgresSyncStateRepository) Save(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_state (` + pgSyncStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT ON CONSTRAINT uq_sync_state_user_conn_cal DO UPDATE SET
			delta_token = EXCLUDED.delta_token,
			updated_min = EXCLUDED.updated_min,
			last_window_start = EXCLUDED.last_window_start,
			last_window_end = EXCLUDED.last_window_end,
			sync_failures = EXCLUDED.sync_failures,
			updated_at = EXCLUDED.updated_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, query,
		state.ID(),
		state.UserID(),
		state.ConnectionID(),
		state.ExternalCalendarID(),
		state.DeltaToken(),
		utcOrNil(state.UpdatedMin()),
		utcOrNil(state.LastWindowStart()),
		utcOrNil(state.LastWindowEnd()),
		state.SyncFailures(),
		state.CreatedAt().UTC(),
		state.UpdatedAt().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

// FindByTriple finds the state for one (user, connection, calendar).
func (r *PostgresSyncStateRepository) FindByTriple(ctx context.Context, userID, connectionID uuid.UUID, externalCalendarID string) (*domain.SyncState, error) {
	query := `SELECT ` + pgSyncStateColumns + ` FROM sync_state
		WHERE user_id = $1 AND connection_id = $2 AND external_calendar_id = $3`

	exec := database.ExecutorFromContext(ctx, r.conn)
	return scanPostgresSyncState(exec.QueryRow(ctx, query, userID, connectionID, externalCalendarID))
}

// FindByConnection finds all states for a connection.
func (r *PostgresSyncStateRepository) FindByConnection(ctx context.Context, connectionID uuid.UUID) ([]*domain.SyncState, error) {
	query := `SELECT ` + pgSyncStateColumns + ` FROM sync_state
		WHERE connection_id = $1 ORDER BY external_calendar_id`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("query sync states: %w", err)
	}
	return collectPostgresSyncStates(rows)
}

// FindPendingSync finds states untouched for longer than the given age,
// oldest first.
func (r *PostgresSyncStateRepository) FindPendingSync(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.SyncState, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `SELECT ` + pgSyncStateColumns + ` FROM sync_state
		WHERE updated_at < $1 ORDER BY updated_at ASC LIMIT $2`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending sync states: %w", err)
	}
	return collectPostgresSyncStates(rows)
}

// Delete removes a sync state.
func (r *PostgresSyncStateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	result, err := exec.Exec(ctx, `DELETE FROM sync_state WHERE id = $1`, id)
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

func collectPostgresSyncStates(rows database.Rows) ([]*domain.SyncState, error) {
	defer rows.Close()

	var out []*domain.SyncState
	for rows.Next() {
		state, err := scanPostgresSyncState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

func scanPostgresSyncState(row database.Row) (*domain.SyncState, error) {
	var (
		id, userID, connectionID           uuid.UUID
		externalCalendarID                 string
		deltaToken                         *string
		updatedMin, windowStart, windowEnd *time.Time
		syncFailures                       int
		createdAt, updatedAt               time.Time
	)
	err := row.Scan(&id, &userID, &connectionID, &externalCalendarID,
		&deltaToken, &updatedMin, &windowStart, &windowEnd, &syncFailures,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var token string
	if deltaToken != nil {
		token = *deltaToken
	}

	return domain.RehydrateSyncState(
		id, userID, connectionID, externalCalendarID,
		token, utcOrNil(updatedMin), utcOrNil(windowStart), utcOrNil(windowEnd),
		syncFailures, createdAt.UTC(), updatedAt.UTC(),
	), nil
}
