package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrLeaseHeld means another sync job holds the lease for the triple.
var ErrLeaseHeld = errors.New("sync lease already held")

// TripleKey identifies the unit of sync concurrency. At most one sync
// job per triple may run at any instant.
type TripleKey struct {
	UserID             uuid.UUID
	ConnectionID       uuid.UUID
	ExternalCalendarID string
}

// String renders the key for lease storage and logging.
func (k TripleKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.UserID, k.ConnectionID, k.ExternalCalendarID)
}

// SyncLease provides per-triple mutual exclusion. Implementations may
// be process-local (keyed mutex) or distributed (Redis SET NX).
type SyncLease interface {
	// TryAcquire takes the lease for the triple without blocking. When
	// the lease is free it returns a release function; when another job
	// holds it, ErrLeaseHeld.
	TryAcquire(ctx context.Context, key TripleKey) (release func(), err error)

	// Held reports whether the lease is currently taken. The dispatcher
	// uses this to acknowledge duplicates without enqueueing them.
	Held(ctx context.Context, key TripleKey) (bool, error)
}
