package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/crypto"
	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

// ErrWriteNotSupported means the platform's adapter cannot push events.
var ErrWriteNotSupported = errors.New("platform does not support event writes")

// JobStatus is the dispatcher's per-calendar acknowledgement for a pull.
type JobStatus string

const (
	StatusQueued         JobStatus = "queued"
	StatusAlreadyRunning JobStatus = "already_running"
	StatusRejected       JobStatus = "rejected"
)

// PushAction selects the adapter operation for one pushed event.
type PushAction string

const (
	ActionCreate PushAction = "create"
	ActionUpdate PushAction = "update"
	ActionDelete PushAction = "delete"
)

// IsValid returns true if the action is recognized.
func (a PushAction) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// PullRequest asks for background syncs of one or more connections.
// When CalendarIDs is empty the adapter enumerates them.
type PullRequest struct {
	ConnectionIDs    []uuid.UUID
	CalendarIDs      []string
	ForceFull        bool
	WindowDaysPast   int
	WindowDaysFuture int
}

// PullAck is the synchronous per-calendar acknowledgement.
type PullAck struct {
	ConnectionID uuid.UUID
	CalendarID   string
	Status       JobStatus
}

// PushEventInput is one event the caller wants written upstream.
type PushEventInput struct {
	LocalID            string
	ExternalEventID    string
	ExternalCalendarID string
	Title              string
	Description        string
	StartUTC           time.Time
	EndUTC             *time.Time
	AllDay             bool
	Location           string
	RecurrenceRule     string
	Attendees          []domain.Attendee
	Action             PushAction
}

// PushResult is the per-event outcome of a push. Failures are isolated
// to the event; the batch never aborts.
type PushResult struct {
	LocalID           string
	Action            PushAction
	Success           bool
	ExternalEventID   string
	ExternalVersion   string
	ExternalUpdatedAt *time.Time
	Error             string
}

// CalendarState is one calendar's sync cursor, for the state query.
type CalendarState struct {
	ExternalCalendarID string
	LastWindowStart    *time.Time
	LastWindowEnd      *time.Time
	HasDeltaToken      bool
	UpdatedMin         *time.Time
}

// ConnectionState is one connection's health plus its calendar cursors.
type ConnectionState struct {
	ConnectionID uuid.UUID
	Platform     domain.PlatformType
	SyncEnabled  bool
	SyncStatus   domain.SyncStatus
	LastSyncAt   *time.Time
	LastError    string
	Calendars    []CalendarState
}

// CalendarSyncer runs one calendar sync. Implemented by Engine.
type CalendarSyncer interface {
	SyncCalendar(ctx context.Context, userID, connectionID uuid.UUID, externalCalendarID string, opts SyncOptions) (*SyncOutcome, error)
}

// JobSubmitter hands a job to the background worker pool. Submit fails
// when the pool cannot take more work.
type JobSubmitter interface {
	Submit(job func(ctx context.Context)) error
}

// Dispatcher receives external sync commands, validates ownership, and
// fans pull jobs out to the worker pool. Push is synchronous.
type Dispatcher struct {
	engine      CalendarSyncer
	connections domain.ConnectionRepository
	states      domain.SyncStateRepository
	registry    *provider.Registry
	codec       crypto.TokenCodec
	lease       SyncLease
	jobs        JobSubmitter
	defaults    SyncOptions
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[TripleKey]struct{}
}

// DispatcherDeps bundles the dispatcher's collaborators.
type DispatcherDeps struct {
	Engine      CalendarSyncer
	Connections domain.ConnectionRepository
	States      domain.SyncStateRepository
	Registry    *provider.Registry
	Codec       crypto.TokenCodec
	Lease       SyncLease
	Jobs        JobSubmitter
	Defaults    SyncOptions
	Logger      *slog.Logger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := deps.Defaults
	if defaults == (SyncOptions{}) {
		defaults = DefaultSyncOptions()
	}
	return &Dispatcher{
		engine:      deps.Engine,
		connections: deps.Connections,
		states:      deps.States,
		registry:    deps.Registry,
		codec:       deps.Codec,
		lease:       deps.Lease,
		jobs:        deps.Jobs,
		defaults:    defaults,
		logger:      logger,
		inflight:    make(map[TripleKey]struct{}),
	}
}

// Pull validates the request, enumerates calendars, and enqueues one
// background job per (connection, calendar). It returns synchronously
// with a queued acknowledgement per calendar. A triple that is already
// queued or running is acknowledged as already_running and not
// enqueued again.
func (d *Dispatcher) Pull(ctx context.Context, userID uuid.UUID, req PullRequest) ([]PullAck, error) {
	if len(req.ConnectionIDs) == 0 {
		return nil, fmt.Errorf("at least one connection ID is required")
	}

	opts := d.defaults
	opts.ForceFull = req.ForceFull
	opts.WindowDaysPast = req.WindowDaysPast
	opts.WindowDaysFuture = req.WindowDaysFuture
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var acks []PullAck
	for _, connectionID := range req.ConnectionIDs {
		conn, err := d.loadOwnedConnection(ctx, userID, connectionID)
		if err != nil {
			return nil, err
		}
		if !conn.SyncEnabled() {
			return nil, fmt.Errorf("connection %s: %w", connectionID, ErrConnectionDisabled)
		}

		adapter, err := d.registry.Resolve(conn.PlatformType())
		if err != nil {
			return nil, err
		}

		calendarIDs := req.CalendarIDs
		if len(calendarIDs) == 0 {
			calendarIDs, err = d.enumerateCalendars(ctx, conn, adapter)
			if err != nil {
				return nil, fmt.Errorf("list calendars for connection %s: %w", connectionID, err)
			}
		}

		for _, calendarID := range calendarIDs {
			acks = append(acks, d.enqueue(ctx, userID, connectionID, calendarID, opts))
		}
	}
	return acks, nil
}

// Push writes events to the remote platform synchronously. Each event
// succeeds or fails on its own.
func (d *Dispatcher) Push(ctx context.Context, userID, connectionID uuid.UUID, events []PushEventInput) ([]PushResult, error) {
	conn, err := d.loadOwnedConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}

	adapter, err := d.registry.Resolve(conn.PlatformType())
	if err != nil {
		return nil, err
	}
	if !adapter.Capabilities().Write {
		return nil, fmt.Errorf("platform %s: %w", conn.PlatformType(), ErrWriteNotSupported)
	}

	token, err := d.codec.DecryptToken(conn.AccessTokenEncrypted(), conn.ID().String())
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}

	results := make([]PushResult, 0, len(events))
	for _, input := range events {
		results = append(results, d.pushOne(ctx, adapter, token, input))
	}
	return results, nil
}

// State returns, per connection owned by the caller, the connection
// health and each calendar's sync cursor.
func (d *Dispatcher) State(ctx context.Context, userID uuid.UUID) ([]ConnectionState, error) {
	conns, err := d.connections.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}

	out := make([]ConnectionState, 0, len(conns))
	for _, conn := range conns {
		states, err := d.states.FindByConnection(ctx, conn.ID())
		if err != nil {
			return nil, fmt.Errorf("load sync states for connection %s: %w", conn.ID(), err)
		}

		calendars := make([]CalendarState, 0, len(states))
		for _, state := range states {
			calendars = append(calendars, CalendarState{
				ExternalCalendarID: state.ExternalCalendarID(),
				LastWindowStart:    state.LastWindowStart(),
				LastWindowEnd:      state.LastWindowEnd(),
				HasDeltaToken:      state.HasDeltaToken(),
				UpdatedMin:         state.UpdatedMin(),
			})
		}

		cs := ConnectionState{
			ConnectionID: conn.ID(),
			Platform:     conn.PlatformType(),
			SyncEnabled:  conn.SyncEnabled(),
			SyncStatus:   conn.SyncStatus(),
			LastError:    conn.LastError(),
			Calendars:    calendars,
		}
		if !conn.LastSyncAt().IsZero() {
			t := conn.LastSyncAt()
			cs.LastSyncAt = &t
		}
		out = append(out, cs)
	}
	return out, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, userID, connectionID uuid.UUID, calendarID string, opts SyncOptions) PullAck {
	key := TripleKey{UserID: userID, ConnectionID: connectionID, ExternalCalendarID: calendarID}
	ack := PullAck{ConnectionID: connectionID, CalendarID: calendarID}

	held, err := d.lease.Held(ctx, key)
	if err != nil {
		d.logger.Warn("lease check failed", "key", key.String(), "error", err)
	}
	if held || !d.markInflight(key) {
		ack.Status = StatusAlreadyRunning
		return ack
	}

	err = d.jobs.Submit(func(jobCtx context.Context) {
		defer d.clearInflight(key)
		if _, err := d.engine.SyncCalendar(jobCtx, userID, connectionID, calendarID, opts); err != nil {
			d.logger.Warn("background sync failed",
				"connection_id", connectionID,
				"calendar_id", calendarID,
				"error", err,
			)
		}
	})
	if err != nil {
		d.clearInflight(key)
		d.logger.Warn("sync job rejected", "key", key.String(), "error", err)
		ack.Status = StatusRejected
		return ack
	}

	ack.Status = StatusQueued
	return ack
}

func (d *Dispatcher) pushOne(ctx context.Context, adapter provider.Provider, token string, input PushEventInput) PushResult {
	result := PushResult{LocalID: input.LocalID, Action: input.Action}

	if !input.Action.IsValid() {
		result.Error = fmt.Sprintf("unknown action: %s", input.Action)
		return result
	}

	if input.Action == ActionDelete {
		// The adapter is never called for a delete with no remote ID.
		if input.ExternalEventID == "" {
			result.Error = "delete requires an external event ID"
			return result
		}
		if err := adapter.DeleteEvent(ctx, token, input.ExternalCalendarID, input.ExternalEventID); err != nil {
			result.Error = err.Error()
			return result
		}
		result.Success = true
		result.ExternalEventID = input.ExternalEventID
		return result
	}

	remote, err := adapter.UpsertEvent(ctx, token, input.ExternalCalendarID, provider.Event{
		ExternalEventID:    input.ExternalEventID,
		ExternalCalendarID: input.ExternalCalendarID,
		Title:              input.Title,
		Description:        input.Description,
		StartUTC:           input.StartUTC,
		EndUTC:             input.EndUTC,
		AllDay:             input.AllDay,
		Location:           input.Location,
		RecurrenceRule:     input.RecurrenceRule,
		Attendees:          input.Attendees,
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.ExternalEventID = remote.ExternalEventID
	result.ExternalVersion = remote.ExternalVersion
	result.ExternalUpdatedAt = remote.ExternalUpdatedAt
	return result
}

func (d *Dispatcher) loadOwnedConnection(ctx context.Context, userID, connectionID uuid.UUID) (*domain.ExternalConnection, error) {
	conn, err := d.connections.FindByID(ctx, connectionID)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("connection %s: %w", connectionID, ErrConnectionNotFound)
		}
		return nil, fmt.Errorf("load connection %s: %w", connectionID, err)
	}
	if !conn.OwnedBy(userID) {
		return nil, fmt.Errorf("connection %s: %w", connectionID, ErrConnectionNotFound)
	}
	return conn, nil
}

func (d *Dispatcher) enumerateCalendars(ctx context.Context, conn *domain.ExternalConnection, adapter provider.Provider) ([]string, error) {
	token, err := d.codec.DecryptToken(conn.AccessTokenEncrypted(), conn.ID().String())
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}

	metas, err := adapter.ListCalendars(ctx, token)
	if err != nil {
		// Adapters without calendar enumeration still sync the default
		// collection.
		if provider.IsKind(err, provider.KindUnsupported) {
			return []string{domain.PrimaryCalendarID}, nil
		}
		return nil, err
	}
	if len(metas) == 0 {
		return []string{domain.PrimaryCalendarID}, nil
	}

	ids := make([]string, 0, len(metas))
	for _, meta := range metas {
		ids = append(ids, meta.ID)
	}
	return ids, nil
}

func (d *Dispatcher) markInflight(key TripleKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[key]; ok {
		return false
	}
	d.inflight[key] = struct{}{}
	return true
}

func (d *Dispatcher) clearInflight(key TripleKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, key)
}
