package application

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

// fakeConnRepo is an in-memory domain.ConnectionRepository.
type fakeConnRepo struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*domain.ExternalConnection
}

func newFakeConnRepo() *fakeConnRepo {
	return &fakeConnRepo{conns: make(map[uuid.UUID]*domain.ExternalConnection)}
}

func (r *fakeConnRepo) Save(_ context.Context, conn *domain.ExternalConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
	return nil
}

func (r *fakeConnRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.ExternalConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return nil, database.ErrNoRows
	}
	return conn, nil
}

func (r *fakeConnRepo) FindByUser(_ context.Context, userID uuid.UUID) ([]*domain.ExternalConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ExternalConnection
	for _, conn := range r.conns {
		if conn.UserID() == userID {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (r *fakeConnRepo) FindSyncEnabled(_ context.Context) ([]*domain.ExternalConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ExternalConnection
	for _, conn := range r.conns {
		if conn.SyncEnabled() {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (r *fakeConnRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	return nil
}

// fakeStateRepo is an in-memory domain.SyncStateRepository.
type fakeStateRepo struct {
	mu     sync.Mutex
	states map[string]*domain.SyncState
	saves  int
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]*domain.SyncState)}
}

func stateKey(userID, connectionID uuid.UUID, calendarID string) string {
	return userID.String() + "|" + connectionID.String() + "|" + calendarID
}

func (r *fakeStateRepo) Save(_ context.Context, state *domain.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[stateKey(state.UserID(), state.ConnectionID(), state.ExternalCalendarID())] = state
	r.saves++
	return nil
}

func (r *fakeStateRepo) FindByTriple(_ context.Context, userID, connectionID uuid.UUID, calendarID string) (*domain.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[stateKey(userID, connectionID, calendarID)]
	if !ok {
		return nil, database.ErrNoRows
	}
	return state, nil
}

func (r *fakeStateRepo) FindByConnection(_ context.Context, connectionID uuid.UUID) ([]*domain.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SyncState
	for _, state := range r.states {
		if state.ConnectionID() == connectionID {
			out = append(out, state)
		}
	}
	return out, nil
}

func (r *fakeStateRepo) FindPendingSync(_ context.Context, olderThan time.Duration, limit int) ([]*domain.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*domain.SyncState
	for _, state := range r.states {
		if state.UpdatedAt().Before(cutoff) && len(out) < limit {
			out = append(out, state)
		}
	}
	return out, nil
}

func (r *fakeStateRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, state := range r.states {
		if state.ID() == id {
			delete(r.states, key)
		}
	}
	return nil
}

// fakeEventRepo is an in-memory domain.EventRepository keyed by the
// sync identity.
type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]*domain.StoredEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*domain.StoredEvent)}
}

func eventKey(userID uuid.UUID, platform domain.PlatformType, calendarID, eventID string) string {
	return userID.String() + "|" + string(platform) + "|" + calendarID + "|" + eventID
}

func (r *fakeEventRepo) Save(_ context.Context, event *domain.StoredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventKey(event.UserID(), event.SourcePlatform(), event.ExternalCalendarID(), event.ExternalEventID())] = event
	return nil
}

func (r *fakeEventRepo) FindBySyncIdentity(_ context.Context, userID uuid.UUID, platform domain.PlatformType, calendarID, eventID string) (*domain.StoredEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventKey(userID, platform, calendarID, eventID)]
	if !ok {
		return nil, database.ErrNoRows
	}
	return event, nil
}

func (r *fakeEventRepo) FindByCalendar(_ context.Context, userID uuid.UUID, platform domain.PlatformType, calendarID string) ([]*domain.StoredEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StoredEvent
	for _, event := range r.events {
		if event.UserID() == userID && event.SourcePlatform() == platform &&
			event.ExternalCalendarID() == calendarID && !event.Deleted() {
			out = append(out, event)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fetchStep scripts one FetchEvents response.
type fetchStep struct {
	result *provider.FetchResult
	err    error
}

// fakeProvider is a scripted provider.Provider.
type fakeProvider struct {
	name       domain.PlatformType
	caps       provider.Capabilities
	calendars  []provider.CalendarMeta
	listErr    error
	fetchSteps []fetchStep
	fetchCalls []provider.FetchQuery

	upsertResult *provider.Event
	upsertErr    error
	upsertCalls  []provider.Event
	deleteErr    error
	deleteCalls  []string
}

func (p *fakeProvider) Name() domain.PlatformType           { return p.name }
func (p *fakeProvider) Capabilities() provider.Capabilities { return p.caps }
func (p *fakeProvider) Close() error                        { return nil }

func (p *fakeProvider) ListCalendars(context.Context, string) ([]provider.CalendarMeta, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.calendars, nil
}

func (p *fakeProvider) FetchEvents(_ context.Context, _ string, query provider.FetchQuery) (*provider.FetchResult, error) {
	p.fetchCalls = append(p.fetchCalls, query)
	if len(p.fetchSteps) == 0 {
		return &provider.FetchResult{}, nil
	}
	step := p.fetchSteps[0]
	if len(p.fetchSteps) > 1 {
		p.fetchSteps = p.fetchSteps[1:]
	}
	return step.result, step.err
}

func (p *fakeProvider) UpsertEvent(_ context.Context, _, _ string, event provider.Event) (*provider.Event, error) {
	p.upsertCalls = append(p.upsertCalls, event)
	if p.upsertErr != nil {
		return nil, p.upsertErr
	}
	if p.upsertResult != nil {
		return p.upsertResult, nil
	}
	out := event
	if out.ExternalEventID == "" {
		out.ExternalEventID = "remote-1"
	}
	return &out, nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, _, _, externalEventID string) error {
	p.deleteCalls = append(p.deleteCalls, externalEventID)
	return p.deleteErr
}

// fakeDB satisfies database.Connection for InTx; queries run against
// the in-memory fakes, so the executor methods are never used.
type fakeDB struct {
	commits   int
	rollbacks int
}

func (f *fakeDB) Exec(context.Context, string, ...any) (database.Result, error) { return nil, nil }
func (f *fakeDB) QueryRow(context.Context, string, ...any) database.Row         { return nil }
func (f *fakeDB) Query(context.Context, string, ...any) (database.Rows, error)  { return nil, nil }
func (f *fakeDB) Close() error                                                  { return nil }
func (f *fakeDB) Ping(context.Context) error                                    { return nil }
func (f *fakeDB) Driver() database.Driver                                       { return database.DriverSQLite }

func (f *fakeDB) BeginTx(context.Context) (database.Transaction, error) {
	return &fakeTx{db: f}, nil
}

type fakeTx struct {
	db *fakeDB
}

func (t *fakeTx) Exec(context.Context, string, ...any) (database.Result, error) { return nil, nil }
func (t *fakeTx) QueryRow(context.Context, string, ...any) database.Row         { return nil }
func (t *fakeTx) Query(context.Context, string, ...any) (database.Rows, error)  { return nil, nil }
func (t *fakeTx) Commit(context.Context) error                                  { t.db.commits++; return nil }
func (t *fakeTx) Rollback(context.Context) error                                { t.db.rollbacks++; return nil }

// plainCodec passes tokens through unchanged.
type plainCodec struct{}

func (plainCodec) EncryptToken(plaintext, _ string) (string, error)  { return plaintext, nil }
func (plainCodec) DecryptToken(ciphertext, _ string) (string, error) { return ciphertext, nil }

// fakeLease is a keyed in-process lease for tests.
type fakeLease struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newFakeLease() *fakeLease {
	return &fakeLease{held: make(map[string]struct{})}
}

func (l *fakeLease) TryAcquire(_ context.Context, key TripleKey) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key.String()
	if _, ok := l.held[k]; ok {
		return nil, ErrLeaseHeld
	}
	l.held[k] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, k)
		l.mu.Unlock()
	}, nil
}

func (l *fakeLease) Held(_ context.Context, key TripleKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key.String()]
	return ok, nil
}

// recordingPublisher captures published routing keys.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}
