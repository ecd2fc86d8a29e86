package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

const pgConnectionColumns = `id, user_id, platform_type, access_token_encrypted,
	sync_enabled, sync_status, last_sync_at, last_error, created_at, updated_at`

// PostgresConnectionRepository persists external connections in Postgres.
type PostgresConnectionRepository struct {
	conn database.Connection
}

// NewPostgresConnectionRepository creates the repository.
func NewPostgresConnectionRepository(conn database.Connection) *PostgresConnectionRepository {
	return &PostgresConnectionRepository{conn: conn}
}

// Save inserts or updates a connection.
func (r *PostgresConnectionRepository) Save(ctx context.Context, c *domain.ExternalConnection) error {
	query := `
		INSERT INTO external_connections (` + pgConnectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			access_token_encrypted = EXCLUDED.access_token_encrypted,
			sync_enabled = EXCLUDED.sync_enabled,
			sync_status = EXCLUDED.sync_status,
			last_sync_at = EXCLUDED.last_sync_at,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, query,
		c.ID(),
		c.UserID(),
		string(c.PlatformType()),
		c.AccessTokenEncrypted(),
		c.SyncEnabled(),
		string(c.SyncStatus()),
		pgNullTime(c.LastSyncAt()),
		c.LastError(),
		c.CreatedAt().UTC(),
		c.UpdatedAt().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	return nil
}

// FindByID finds a connection by ID.
func (r *PostgresConnectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ExternalConnection, error) {
	query := `SELECT ` + pgConnectionColumns + ` FROM external_connections WHERE id = $1`

	exec := database.ExecutorFromContext(ctx, r.conn)
	return scanPostgresConnection(exec.QueryRow(ctx, query, id))
}

// FindByUser finds all connections for a user.
func (r *PostgresConnectionRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ExternalConnection, error) {
	query := `SELECT ` + pgConnectionColumns + ` FROM external_connections
		WHERE user_id = $1 ORDER BY created_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	return collectPostgresConnections(rows)
}

// FindSyncEnabled finds all connections with sync enabled.
func (r *PostgresConnectionRepository) FindSyncEnabled(ctx context.Context) ([]*domain.ExternalConnection, error) {
	query := `SELECT ` + pgConnectionColumns + ` FROM external_connections
		WHERE sync_enabled ORDER BY created_at`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	return collectPostgresConnections(rows)
}

// Delete removes a connection. Its sync states cascade.
func (r *PostgresConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	result, err := exec.Exec(ctx, `DELETE FROM external_connections WHERE id = $1`, id)
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

func collectPostgresConnections(rows database.Rows) ([]*domain.ExternalConnection, error) {
	defer rows.Close()

	var out []*domain.ExternalConnection
	for rows.Next() {
		c, err := scanPostgresConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanPostgresConnection(row database.Row) (*domain.ExternalConnection, error) {
	var (
		id, userID           uuid.UUID
		platform, status     string
		token                string
		syncEnabled          bool
		lastSyncAt           *time.Time
		lastError            *string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &userID, &platform, &token, &syncEnabled, &status, &lastSyncAt, &lastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var last time.Time
	if lastSyncAt != nil {
		last = lastSyncAt.UTC()
	}
	var lastErr string
	if lastError != nil {
		lastErr = *lastError
	}

	return domain.RehydrateExternalConnection(
		id,
		userID,
		domain.PlatformType(platform),
		token,
		syncEnabled,
		domain.SyncStatus(status),
		last,
		lastErr,
		createdAt.UTC(),
		updatedAt.UTC(),
	), nil
}
