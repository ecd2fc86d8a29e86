package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

type stubProvider struct {
	name   domain.PlatformType
	closed bool
}

func (s *stubProvider) Name() domain.PlatformType { return s.name }
func (s *stubProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }
func (s *stubProvider) ListCalendars(context.Context, string) ([]provider.CalendarMeta, error) {
	return nil, nil
}
func (s *stubProvider) FetchEvents(context.Context, string, provider.FetchQuery) (*provider.FetchResult, error) {
	return &provider.FetchResult{}, nil
}
func (s *stubProvider) UpsertEvent(context.Context, string, string, provider.Event) (*provider.Event, error) {
	return nil, nil
}
func (s *stubProvider) DeleteEvent(context.Context, string, string, string) error { return nil }
func (s *stubProvider) Close() error {
	s.closed = true
	return nil
}

func TestRegistry_Resolve(t *testing.T) {
	registry := provider.NewRegistry()
	google := &stubProvider{name: domain.PlatformGoogle}
	registry.Register(google)

	resolved, err := registry.Resolve(domain.PlatformGoogle)
	require.NoError(t, err)
	assert.Same(t, provider.Provider(google), resolved)

	_, err = registry.Resolve(domain.PlatformNaver)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "naver")
}

func TestRegistry_Close(t *testing.T) {
	registry := provider.NewRegistry()
	google := &stubProvider{name: domain.PlatformGoogle}
	naver := &stubProvider{name: domain.PlatformNaver}
	registry.Register(google)
	registry.Register(naver)

	require.NoError(t, registry.Close())
	assert.True(t, google.closed)
	assert.True(t, naver.closed)
}

func TestRegistry_Platforms(t *testing.T) {
	registry := provider.NewRegistry()
	registry.Register(&stubProvider{name: domain.PlatformGoogle})
	registry.Register(&stubProvider{name: domain.PlatformKakao})

	assert.ElementsMatch(t,
		[]domain.PlatformType{domain.PlatformGoogle, domain.PlatformKakao},
		registry.Platforms(),
	)
}
