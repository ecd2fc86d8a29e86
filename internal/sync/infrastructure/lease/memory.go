// Package lease implements the per-triple sync lease, process-local
// for single-instance deployments and Redis-backed when several
// instances share the work.
package lease

import (
	"context"
	"sync"

	"github.com/mokkoji/syncd/internal/sync/application"
)

// Memory is a process-local lease built on a keyed mutex map. Entries
// are removed on release so an idle process holds no state.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an empty in-process lease.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// TryAcquire takes the lease or fails with ErrLeaseHeld.
func (m *Memory) TryAcquire(_ context.Context, key application.TripleKey) (func(), error) {
	k := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[k]; ok {
		return nil, application.ErrLeaseHeld
	}
	m.held[k] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, k)
			m.mu.Unlock()
		})
	}
	return release, nil
}

// Held reports whether the lease is taken.
func (m *Memory) Held(_ context.Context, key application.TripleKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key.String()]
	return ok, nil
}
