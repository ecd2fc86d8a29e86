package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/pkg/config"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:               "development",
		MasterKey:            "test-master-key",
		KeySalt:              "dGVzdC1zYWx0",
		SQLitePath:           filepath.Join(t.TempDir(), "syncd.db"),
		SyncWindowPastDays:   30,
		SyncWindowFutureDays: 365,
		SyncMaxRetries:       3,
		SyncPollInterval:     5 * time.Minute,
		SyncWorkerCount:      2,
		SyncJobQueueSize:     8,
		SyncLeaseTTL:         10 * time.Minute,
		HTTPTimeout:          5 * time.Second,
	}
}

func TestNewContainer_LocalSQLite(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	c, err := NewContainer(ctx, localConfig(t), logger)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, database.DriverSQLite, c.DBDriver)
	assert.Nil(t, c.RedisClient)

	require.NotNil(t, c.ConnectionRepo)
	require.NotNil(t, c.SyncStateRepo)
	require.NotNil(t, c.EventRepo)
	require.NotNil(t, c.Engine)
	require.NotNil(t, c.Dispatcher)
	require.NotNil(t, c.Pool)
	require.NotNil(t, c.Sweeper)

	// Migrations ran: the connections table is queryable.
	conns, err := c.ConnectionRepo.FindSyncEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, conns)

	// All four platform adapters are registered.
	assert.Len(t, c.ProviderRegistry.Platforms(), 4)
}

func TestNewContainer_MissingMasterKey(t *testing.T) {
	cfg := localConfig(t)
	cfg.MasterKey = ""

	_, err := NewContainer(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}
