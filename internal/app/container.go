// Package app wires configuration, storage, adapters and the sync
// engine into one container shared by the daemon and the CLI.
package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/crypto"
	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	_ "github.com/mokkoji/syncd/internal/shared/infrastructure/database/postgres" // Register Postgres driver
	_ "github.com/mokkoji/syncd/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/mokkoji/syncd/internal/shared/infrastructure/eventbus"
	"github.com/mokkoji/syncd/internal/shared/infrastructure/migrations"
	"github.com/mokkoji/syncd/internal/sync/application"
	"github.com/mokkoji/syncd/internal/sync/application/workers"
	"github.com/mokkoji/syncd/internal/sync/domain"
	syncLease "github.com/mokkoji/syncd/internal/sync/infrastructure/lease"
	"github.com/mokkoji/syncd/internal/sync/infrastructure/persistence"
	"github.com/mokkoji/syncd/internal/sync/provider"
	"github.com/mokkoji/syncd/internal/sync/provider/caldav"
	"github.com/mokkoji/syncd/internal/sync/provider/google"
	"github.com/mokkoji/syncd/internal/sync/provider/kakao"
	"github.com/mokkoji/syncd/internal/sync/provider/naver"
	"github.com/mokkoji/syncd/pkg/config"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DB       database.Connection
	DBDriver database.Driver

	// Redis (nil when the in-process lease is used)
	RedisClient *redis.Client

	// Repositories (driver picked from the connection)
	ConnectionRepo domain.ConnectionRepository
	SyncStateRepo  domain.SyncStateRepository
	EventRepo      domain.EventRepository

	// Crypto
	TokenCodec crypto.TokenCodec

	// Providers
	ProviderRegistry *provider.Registry

	// Publishers
	EventPublisher eventbus.Publisher

	// Lease
	Lease application.SyncLease

	// Sync
	Engine     *application.Engine
	Dispatcher *application.Dispatcher
	Pool       *workers.Pool
	Sweeper    *workers.Sweeper
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	// Connect to the database; an empty DATABASE_URL means local SQLite.
	conn, err := database.NewConnection(ctx, database.Config{
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = conn
	c.DBDriver = conn.Driver()

	if err := migrations.Run(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("connected to database", "driver", c.DBDriver)

	// Token codec. The salt is base64 when it decodes, raw bytes otherwise.
	salt, err := base64.StdEncoding.DecodeString(cfg.KeySalt)
	if err != nil {
		salt = []byte(cfg.KeySalt)
	}
	codec, err := crypto.NewAESTokenCodec(cfg.MasterKey, salt)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	c.TokenCodec = codec

	// Repositories
	switch c.DBDriver {
	case database.DriverPostgres:
		c.ConnectionRepo = persistence.NewPostgresConnectionRepository(conn)
		c.SyncStateRepo = persistence.NewPostgresSyncStateRepository(conn)
		c.EventRepo = persistence.NewPostgresEventRepository(conn)
	default:
		c.ConnectionRepo = persistence.NewSQLiteConnectionRepository(conn)
		c.SyncStateRepo = persistence.NewSQLiteSyncStateRepository(conn)
		c.EventRepo = persistence.NewSQLiteEventRepository(conn)
	}

	// Sync lease: Redis when configured, in-process otherwise.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			if !cfg.IsDevelopment() {
				conn.Close()
				return nil, fmt.Errorf("failed to connect to Redis: %w", err)
			}
			logger.Warn("Redis not available, using in-process sync lease", "error", err)
			c.Lease = syncLease.NewMemory()
		} else {
			c.RedisClient = client
			c.Lease = syncLease.NewRedis(client, cfg.SyncLeaseTTL, logger)
			logger.Info("connected to Redis")
		}
	} else {
		c.Lease = syncLease.NewMemory()
	}

	// Event publisher: RabbitMQ when configured, noop otherwise.
	if cfg.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			if !cfg.IsDevelopment() {
				c.Close()
				return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
			c.EventPublisher = eventbus.NewNoopPublisher(logger)
		} else {
			c.EventPublisher = publisher
		}
	} else {
		c.EventPublisher = eventbus.NewNoopPublisher(logger)
	}

	// Provider registry: every adapter behind a circuit breaker.
	breakerCfg := provider.DefaultBreakerConfig()
	c.ProviderRegistry = provider.NewRegistry()
	c.ProviderRegistry.Register(provider.WithBreaker(google.NewProvider(google.Config{
		BaseURL: cfg.GoogleAPIBaseURL,
		Timeout: cfg.HTTPTimeout,
	}, logger), breakerCfg, logger))
	c.ProviderRegistry.Register(provider.WithBreaker(naver.NewProvider(naver.Config{
		BaseURL: cfg.NaverAPIBaseURL,
		Timeout: cfg.HTTPTimeout,
	}, logger), breakerCfg, logger))
	c.ProviderRegistry.Register(provider.WithBreaker(kakao.NewProvider(logger), breakerCfg, logger))
	c.ProviderRegistry.Register(provider.WithBreaker(caldav.NewProvider(caldav.Config{
		BaseURL: cfg.CalDAVBaseURL,
		Timeout: cfg.HTTPTimeout,
	}, logger), breakerCfg, logger))

	// Sync engine
	c.Engine = application.NewEngine(application.EngineDeps{
		Connections: c.ConnectionRepo,
		States:      c.SyncStateRepo,
		Events:      c.EventRepo,
		Registry:    c.ProviderRegistry,
		Codec:       c.TokenCodec,
		DB:          conn,
		Lease:       c.Lease,
		Publisher:   c.EventPublisher,
		Logger:      logger,
	})

	defaults := application.DefaultSyncOptions()
	defaults.WindowDaysPast = cfg.SyncWindowPastDays
	defaults.WindowDaysFuture = cfg.SyncWindowFutureDays
	defaults.MaxRetries = cfg.SyncMaxRetries

	// Worker pool and dispatcher
	c.Pool = workers.NewPool(cfg.SyncWorkerCount, cfg.SyncJobQueueSize, logger)
	c.Dispatcher = application.NewDispatcher(application.DispatcherDeps{
		Engine:      c.Engine,
		Connections: c.ConnectionRepo,
		States:      c.SyncStateRepo,
		Registry:    c.ProviderRegistry,
		Codec:       c.TokenCodec,
		Lease:       c.Lease,
		Jobs:        c.Pool,
		Defaults:    defaults,
		Logger:      logger,
	})

	// Background sweeper
	c.Sweeper = workers.NewSweeper(workers.SweeperDeps{
		States:   c.SyncStateRepo,
		Engine:   c.Engine,
		Jobs:     c.Pool,
		Interval: cfg.SyncPollInterval,
		Options:  defaults,
		Logger:   logger,
	})

	return c, nil
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.ProviderRegistry != nil {
		if err := c.ProviderRegistry.Close(); err != nil {
			c.Logger.Warn("error closing provider adapters", "error", err)
		}
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver)
		}
	}
}
