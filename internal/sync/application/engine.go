package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/crypto"
	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/shared/infrastructure/eventbus"
	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

// Engine-level errors surfaced to the dispatcher.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionDisabled = errors.New("sync is disabled for this connection")
	ErrSyncAlreadyRunning = errors.New("a sync for this calendar is already running")
)

// SyncOptions scopes one sync request.
type SyncOptions struct {
	ForceFull        bool
	WindowDaysPast   int
	WindowDaysFuture int
	MaxRetries       int
	BatchSize        int
}

// DefaultSyncOptions returns the standing defaults used by the
// background sweep and the CLI when the caller specifies nothing.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		WindowDaysPast:   30,
		WindowDaysFuture: 365,
		MaxRetries:       3,
		BatchSize:        100,
	}
}

// Validate enforces the request bounds.
func (o SyncOptions) Validate() error {
	if o.WindowDaysPast < 1 || o.WindowDaysPast > 365 {
		return fmt.Errorf("window_days_past must be in [1, 365], got %d", o.WindowDaysPast)
	}
	if o.WindowDaysFuture < 1 || o.WindowDaysFuture > 730 {
		return fmt.Errorf("window_days_future must be in [1, 730], got %d", o.WindowDaysFuture)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", o.MaxRetries)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", o.BatchSize)
	}
	return nil
}

// SyncOutcome reports what one calendar sync did.
type SyncOutcome struct {
	Created   int
	Updated   int
	Deleted   int
	Skipped   int
	UsedDelta bool
	Duration  time.Duration
}

// Engine orchestrates a single calendar sync: credential resolution,
// strategy selection, the retry loop around the adapter, the upsert
// pipeline, and the durable cursor advance.
type Engine struct {
	connections domain.ConnectionRepository
	states      domain.SyncStateRepository
	upserter    *Upserter
	registry    *provider.Registry
	codec       crypto.TokenCodec
	db          database.Connection
	lease       SyncLease
	publisher   eventbus.Publisher
	logger      *slog.Logger

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	newPolicy func(maxRetries int) *RetryPolicy
}

// EngineDeps bundles the engine's collaborators.
type EngineDeps struct {
	Connections domain.ConnectionRepository
	States      domain.SyncStateRepository
	Events      domain.EventRepository
	Registry    *provider.Registry
	Codec       crypto.TokenCodec
	DB          database.Connection
	Lease       SyncLease
	Publisher   eventbus.Publisher
	Logger      *slog.Logger
}

// NewEngine wires the sync engine.
func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = eventbus.NewNoopPublisher(logger)
	}
	return &Engine{
		connections: deps.Connections,
		states:      deps.States,
		upserter:    NewUpserter(deps.Events, logger),
		registry:    deps.Registry,
		codec:       deps.Codec,
		db:          deps.DB,
		lease:       deps.Lease,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepCtx,
		newPolicy:   NewRetryPolicy,
	}
}

// WithClock overrides the engine's clock. Tests use this.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithSleeper overrides the backoff sleeper. Tests use this.
func (e *Engine) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) *Engine {
	e.sleep = sleep
	return e
}

// WithPolicyFactory overrides how retry policies are built. Tests use
// this to pin the jitter.
func (e *Engine) WithPolicyFactory(factory func(maxRetries int) *RetryPolicy) *Engine {
	e.newPolicy = factory
	return e
}

// SyncCalendar runs one calendar sync end to end. The upsert batch and
// the cursor advance commit in a single transaction; the connection
// health update is a separate one, so a crash between the two never
// loses fetched data.
func (e *Engine) SyncCalendar(
	ctx context.Context,
	userID, connectionID uuid.UUID,
	externalCalendarID string,
	opts SyncOptions,
) (*SyncOutcome, error) {
	started := e.now()

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	conn, err := e.connections.FindByID(ctx, connectionID)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("load connection: %w", err)
	}
	// Ownership failures look identical to missing connections so a
	// caller cannot probe other users' connection IDs.
	if !conn.OwnedBy(userID) {
		return nil, ErrConnectionNotFound
	}
	if !conn.SyncEnabled() {
		return nil, ErrConnectionDisabled
	}

	adapter, err := e.registry.Resolve(conn.PlatformType())
	if err != nil {
		return nil, err
	}

	token, err := e.codec.DecryptToken(conn.AccessTokenEncrypted(), conn.ID().String())
	if err != nil {
		return nil, e.failSync(ctx, conn, nil, externalCalendarID, fmt.Errorf("decrypt credential: %w", err))
	}

	key := TripleKey{UserID: userID, ConnectionID: connectionID, ExternalCalendarID: externalCalendarID}
	release, err := e.lease.TryAcquire(ctx, key)
	if err != nil {
		if errors.Is(err, ErrLeaseHeld) {
			return nil, ErrSyncAlreadyRunning
		}
		return nil, fmt.Errorf("acquire sync lease: %w", err)
	}
	defer release()

	conn.MarkSyncing()
	if err := e.connections.Save(ctx, conn); err != nil {
		e.logger.Warn("failed to mark connection syncing", "connection_id", connectionID, "error", err)
	}

	state, err := e.loadOrCreateState(ctx, key)
	if err != nil {
		return nil, e.failSync(ctx, conn, nil, externalCalendarID, err)
	}

	now := e.now().UTC()
	since := now.AddDate(0, 0, -opts.WindowDaysPast)
	until := now.AddDate(0, 0, opts.WindowDaysFuture)

	useDelta := !opts.ForceFull && adapter.Capabilities().Delta && state.HasDeltaToken()
	result, usedDelta, err := e.fetchWithRetry(ctx, adapter, token, state, externalCalendarID, since, until, useDelta, opts)
	if err != nil {
		return nil, e.failSync(ctx, conn, state, externalCalendarID, err)
	}

	var counts UpsertCounts
	err = database.InTx(ctx, e.db, func(ctx context.Context) error {
		for start := 0; start < len(result.Events); start += opts.BatchSize {
			end := min(start+opts.BatchSize, len(result.Events))
			batch, err := e.upserter.Apply(ctx, userID, conn.PlatformType(), externalCalendarID, result.Events[start:end])
			if err != nil {
				return err
			}
			counts.add(batch)
		}
		state.Advance(result.NextDeltaToken, result.MaxUpdatedAt, since, until)
		return e.states.Save(ctx, state)
	})
	if err != nil {
		return nil, e.failSync(ctx, conn, state, externalCalendarID, fmt.Errorf("commit sync: %w", err))
	}

	conn.MarkSynced(e.now())
	if err := e.connections.Save(ctx, conn); err != nil {
		e.logger.Warn("failed to mark connection synced", "connection_id", connectionID, "error", err)
	}

	outcome := &SyncOutcome{
		Created:   counts.Created,
		Updated:   counts.Updated,
		Deleted:   counts.Deleted,
		Skipped:   counts.Skipped,
		UsedDelta: usedDelta,
		Duration:  e.now().Sub(started),
	}

	completed := domain.NewSyncCompletedEvent(
		userID, connectionID, conn.PlatformType(), externalCalendarID,
		outcome.Created, outcome.Updated, outcome.Deleted, outcome.Skipped, outcome.Duration,
	)
	if err := eventbus.PublishDomainEvent(ctx, e.publisher, completed); err != nil {
		e.logger.Warn("failed to publish sync completed event", "connection_id", connectionID, "error", err)
	}

	e.logger.Info("calendar sync completed",
		"connection_id", connectionID,
		"calendar_id", externalCalendarID,
		"platform", conn.PlatformType(),
		"created", outcome.Created,
		"updated", outcome.Updated,
		"deleted", outcome.Deleted,
		"skipped", outcome.Skipped,
		"used_delta", outcome.UsedDelta,
		"duration", outcome.Duration,
	)
	return outcome, nil
}

// fetchWithRetry runs the retry loop around the adapter fetch. A
// rejected delta token switches to window mode without consuming the
// attempt budget; all other errors consult the retry policy.
func (e *Engine) fetchWithRetry(
	ctx context.Context,
	adapter provider.Provider,
	token string,
	state *domain.SyncState,
	externalCalendarID string,
	since, until time.Time,
	useDelta bool,
	opts SyncOptions,
) (*provider.FetchResult, bool, error) {
	policy := e.newPolicy(opts.MaxRetries)

	for attempt := 0; ; {
		query := provider.FetchQuery{
			CalendarID: externalCalendarID,
			Since:      since,
			Until:      until,
		}
		if useDelta {
			query.DeltaToken = state.DeltaToken()
		} else {
			query.UpdatedMin = state.UpdatedMin()
		}

		result, err := adapter.FetchEvents(ctx, token, query)
		if err == nil {
			return result, useDelta, nil
		}
		if ctx.Err() != nil {
			return nil, useDelta, fmt.Errorf("sync cancelled: %w", ctx.Err())
		}

		decision := policy.Decide(attempt, err)
		switch {
		case decision.FallbackToWindow:
			if !useDelta {
				// The provider rejected a fetch that carried no token.
				return nil, useDelta, err
			}
			e.logger.Info("delta token rejected, falling back to window sync",
				"platform", adapter.Name(),
				"calendar_id", externalCalendarID,
			)
			state.ClearDeltaToken()
			useDelta = false

		case decision.Retry:
			e.logger.Warn("fetch failed, retrying",
				"platform", adapter.Name(),
				"calendar_id", externalCalendarID,
				"attempt", attempt,
				"sleep", decision.Sleep,
				"error", err,
			)
			if serr := e.sleep(ctx, decision.Sleep); serr != nil {
				return nil, useDelta, fmt.Errorf("sync cancelled: %w", serr)
			}
			attempt++

		default:
			return nil, useDelta, err
		}
	}
}

func (e *Engine) loadOrCreateState(ctx context.Context, key TripleKey) (*domain.SyncState, error) {
	state, err := e.states.FindByTriple(ctx, key.UserID, key.ConnectionID, key.ExternalCalendarID)
	if err == nil {
		return state, nil
	}
	if database.IsNoRows(err) {
		return domain.NewSyncState(key.UserID, key.ConnectionID, key.ExternalCalendarID), nil
	}
	return nil, fmt.Errorf("load sync state: %w", err)
}

// failSync records the failure on the connection and, when a state was
// in play, its consecutive failure count, then publishes the failure
// event. The original error is returned for the caller.
func (e *Engine) failSync(
	ctx context.Context,
	conn *domain.ExternalConnection,
	state *domain.SyncState,
	externalCalendarID string,
	cause error,
) error {
	// Failure bookkeeping must survive the cancellation that may have
	// caused the failure.
	ctx = context.WithoutCancel(ctx)

	if state != nil {
		state.MarkFailure()
		if err := e.states.Save(ctx, state); err != nil {
			e.logger.Warn("failed to record sync failure on state", "connection_id", conn.ID(), "error", err)
		}
	}

	conn.MarkSyncFailed(cause.Error())
	if err := e.connections.Save(ctx, conn); err != nil {
		e.logger.Warn("failed to mark connection errored", "connection_id", conn.ID(), "error", err)
	}

	failed := domain.NewSyncFailedEvent(conn.UserID(), conn.ID(), conn.PlatformType(), externalCalendarID, cause.Error())
	if err := eventbus.PublishDomainEvent(ctx, e.publisher, failed); err != nil {
		e.logger.Warn("failed to publish sync failed event", "connection_id", conn.ID(), "error", err)
	}

	e.logger.Error("calendar sync failed",
		"connection_id", conn.ID(),
		"calendar_id", externalCalendarID,
		"platform", conn.PlatformType(),
		"error", cause,
	)
	return cause
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
