package provider

import (
	"fmt"
	"sync"

	"github.com/mokkoji/syncd/internal/sync/domain"
)

// Registry holds the adapter for each platform.
type Registry struct {
	mu        sync.RWMutex
	providers map[domain.PlatformType]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[domain.PlatformType]Provider),
	}
}

// Register adds or replaces the adapter for a platform.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve returns the adapter for a platform.
func (r *Registry) Resolve(platform domain.PlatformType) (Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[platform]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no provider registered for platform: %s", platform)
	}
	return p, nil
}

// Platforms returns all registered platform types.
func (r *Registry) Platforms() []domain.PlatformType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.PlatformType, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p)
	}
	return out
}

// Close closes every registered adapter, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
