// Package kakao is a placeholder adapter. Kakao Calendar has no public
// API; every operation reports Unsupported with a hint pointing users
// at device calendar sync or manual iCal import. Registering it keeps
// platform enumeration uniform in the dispatcher.
package kakao

import (
	"context"
	"log/slog"

	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

// Provider is the Kakao Calendar placeholder adapter.
type Provider struct {
	logger *slog.Logger
}

// NewProvider creates the placeholder adapter.
func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{logger: logger}
}

// Name returns the platform this adapter serves.
func (p *Provider) Name() domain.PlatformType {
	return domain.PlatformKakao
}

// Capabilities reports no support at all.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{}
}

// ListCalendars is unsupported.
func (p *Provider) ListCalendars(ctx context.Context, token string) ([]provider.CalendarMeta, error) {
	return nil, provider.Unsupported(p.Name(), "list_calendars",
		"Kakao Calendar API is not available. Use the device calendar app or export/import iCal files.")
}

// FetchEvents is unsupported.
func (p *Provider) FetchEvents(ctx context.Context, token string, query provider.FetchQuery) (*provider.FetchResult, error) {
	p.logger.Warn("attempted to fetch Kakao calendar events", "calendar_id", query.CalendarID)
	return nil, provider.Unsupported(p.Name(), "fetch_events",
		"Kakao Calendar reading is not supported. Consider device calendar sync or manual iCal import.")
}

// UpsertEvent is unsupported.
func (p *Provider) UpsertEvent(ctx context.Context, token, calendarID string, event provider.Event) (*provider.Event, error) {
	p.logger.Warn("attempted to create Kakao event", "title", event.Title)
	return nil, provider.Unsupported(p.Name(), "upsert_event",
		"Kakao Calendar writing is not supported. The event is saved locally only.")
}

// DeleteEvent is unsupported.
func (p *Provider) DeleteEvent(ctx context.Context, token, calendarID, externalEventID string) error {
	p.logger.Warn("attempted to delete Kakao event", "external_event_id", externalEventID)
	return provider.Unsupported(p.Name(), "delete_event",
		"Kakao Calendar deletion is not supported. The event is marked as deleted locally.")
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
