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

const sqliteConnectionColumns = `id, user_id, platform_type, access_token_encrypted,
	sync_enabled, sync_status, last_sync_at, last_error, created_at, updated_at`

// SQLiteConnectionRepository persists external connections in SQLite.
type SQLiteConnectionRepository struct {
	conn database.Connection
}

// NewSQLiteConnectionRepository creates the repository.
func NewSQLiteConnectionRepository(conn database.Connection) *SQLiteConnectionRepository {
	return &SQLiteConnectionRepository{conn: conn}
}

// Save inserts or updates a connection.
func (r *SQLiteConnectionRepository) Save(ctx context.Context, c *domain.ExternalConnection) error {
	query := `
		INSERT INTO external_connections (` + sqliteConnectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token_encrypted = excluded.access_token_encrypted,
			sync_enabled = excluded.sync_enabled,
			sync_status = excluded.sync_status,
			last_sync_at = excluded.last_sync_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, query,
		c.ID().String(),
		c.UserID().String(),
		string(c.PlatformType()),
		c.AccessTokenEncrypted(),
		c.SyncEnabled(),
		string(c.SyncStatus()),
		sqliteZeroNullTime(c.LastSyncAt()),
		c.LastError(),
		sqliteTime(c.CreatedAt()),
		sqliteTime(c.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	return nil
}

// FindByID finds a connection by ID.
func (r *SQLiteConnectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ExternalConnection, error) {
	query := `SELECT ` + sqliteConnectionColumns + ` FROM external_connections WHERE id = ?`

	exec := database.ExecutorFromContext(ctx, r.conn)
	return scanSQLiteConnection(exec.QueryRow(ctx, query, id.String()))
}

// FindByUser finds all connections for a user.
func (r *SQLiteConnectionRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ExternalConnection, error) {
	query := `SELECT ` + sqliteConnectionColumns + ` FROM external_connections
		WHERE user_id = ? ORDER BY created_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	return collectSQLiteConnections(rows)
}

// FindSyncEnabled finds all connections with sync enabled.
func (r *SQLiteConnectionRepository) FindSyncEnabled(ctx context.Context) ([]*domain.ExternalConnection, error) {
	query := `SELECT ` + sqliteConnectionColumns + ` FROM external_connections
		WHERE sync_enabled = 1 ORDER BY created_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	return collectSQLiteConnections(rows)
}

// Delete removes a connection. Its sync states cascade.
func (r *SQLiteConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	result, err := exec.Exec(ctx, `DELETE FROM external_connections WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
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

func collectSQLiteConnections(rows database.Rows) ([]*domain.ExternalConnection, error) {
	defer rows.Close()

	var out []*domain.ExternalConnection
	for rows.Next() {
		c, err := scanSQLiteConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSQLiteConnection(row database.Row) (*domain.ExternalConnection, error) {
	var (
		id, userID           string
		platform, status     string
		token                string
		syncEnabled          bool
		lastSyncAt           sql.NullString
		lastError            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &userID, &platform, &token, &syncEnabled, &status, &lastSyncAt, &lastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	connID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse connection id: %w", err)
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	created, err := parseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}
	lastSync, err := parseSQLiteNullTime(lastSyncAt)
	if err != nil {
		return nil, err
	}
	var last time.Time
	if lastSync != nil {
		last = *lastSync
	}

	return domain.RehydrateExternalConnection(
		connID,
		uid,
		domain.PlatformType(platform),
		token,
		syncEnabled,
		domain.SyncStatus(status),
		last,
		lastError.String,
		created,
		updated,
	), nil
}
