// Package naver implements the Naver Calendar adapter. Naver has no
// event-read API; writes go through createSchedule.json as an ICS
// string, and re-submitting the same UID updates the event in place.
package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

const (
	// DefaultBaseURL is the Naver open API endpoint.
	DefaultBaseURL = "https://openapi.naver.com"

	// DefaultCalendarID is Naver's single built-in calendar.
	DefaultCalendarID = "naver-default"

	createSchedulePath = "/calendar/createSchedule.json"
)

// Config configures the Naver adapter.
type Config struct {
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// Timeout bounds every HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Provider is the Naver Calendar adapter.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewProvider creates a Naver Calendar adapter.
func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Name returns the platform this adapter serves.
func (p *Provider) Name() domain.PlatformType {
	return domain.PlatformNaver
}

// Capabilities reports write-only support. Read works only through the
// ICS-URL overload of FetchEvents.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Read: false, Write: true, Delta: false}
}

// Close releases the adapter's resources.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// ListCalendars returns the single built-in calendar.
func (p *Provider) ListCalendars(ctx context.Context, token string) ([]provider.CalendarMeta, error) {
	return []provider.CalendarMeta{
		{ID: DefaultCalendarID, Name: "Naver Calendar", Primary: true},
	}, nil
}

// FetchEvents is unsupported for regular calendars. As an escape hatch
// a calendar ID that is an http(s) URL is treated as a public ICS feed:
// the feed is fetched, parsed, and filtered to [since, until) by start
// time.
func (p *Provider) FetchEvents(ctx context.Context, token string, query provider.FetchQuery) (*provider.FetchResult, error) {
	const op = "fetch_events"

	if !strings.HasPrefix(query.CalendarID, "http://") && !strings.HasPrefix(query.CalendarID, "https://") {
		return nil, provider.Unsupported(p.Name(), op,
			"Naver calendar read not supported. Use an ICS URL if available.")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query.CalendarID, nil)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}
	req.Header.Set("User-Agent", "Mokkoji/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, provider.NewError(provider.KindPermanent, p.Name(), op, ctx.Err())
		}
		return nil, provider.NewError(provider.KindTransient, p.Name(), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, p.classify(op, resp.StatusCode, "ICS feed fetch failed")
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewError(provider.KindTransient, p.Name(), op, err)
	}

	events, err := ParseICS(string(content), query.CalendarID)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}

	result := &provider.FetchResult{}
	for _, event := range events {
		if event.StartUTC.Before(query.Since) || !event.StartUTC.Before(query.Until) {
			continue
		}
		result.Events = append(result.Events, event)
		if event.ExternalUpdatedAt != nil {
			if result.MaxUpdatedAt == nil || event.ExternalUpdatedAt.After(*result.MaxUpdatedAt) {
				t := *event.ExternalUpdatedAt
				result.MaxUpdatedAt = &t
			}
		}
	}
	return result, nil
}

// UpsertEvent serializes the event as ICS and posts it to the
// createSchedule API. The remote treats a repeated UID as an update.
func (p *Provider) UpsertEvent(ctx context.Context, token, calendarID string, event provider.Event) (*provider.Event, error) {
	const op = "upsert_event"

	ics := GenerateICS(event, p.now())

	form := url.Values{}
	form.Set("calendarId", "defaultCalendarId")
	form.Set("scheduleIcalString", ics)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+createSchedulePath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mokkoji/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, provider.NewError(provider.KindPermanent, p.Name(), op, ctx.Err())
		}
		return nil, provider.NewError(provider.KindTransient, p.Name(), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, p.classify(op, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		Result struct {
			ID string `json:"id"`
		} `json:"result"`
	}
	// Some deployments return an empty body on success.
	_ = json.NewDecoder(resp.Body).Decode(&body)

	upserted := event
	if body.Result.ID != "" {
		upserted.ExternalEventID = body.Result.ID
	} else if upserted.ExternalEventID == "" {
		upserted.ExternalEventID = EventUID(event)
	}
	now := p.now().UTC()
	upserted.ExternalUpdatedAt = &now
	upserted.ExternalVersion = ""
	return &upserted, nil
}

// DeleteEvent is unsupported; callers fall back to a local tombstone.
func (p *Provider) DeleteEvent(ctx context.Context, token, calendarID, externalEventID string) error {
	return provider.Unsupported(p.Name(), "delete_event",
		"Naver calendar delete not supported. Event will be marked as deleted locally.")
}

func (p *Provider) classify(op string, status int, detail string) error {
	err := fmt.Errorf("HTTP %d: %s", status, detail)

	switch {
	case status == http.StatusUnauthorized:
		return provider.NewError(provider.KindAuthExpired, p.Name(), op, err)
	case status == http.StatusTooManyRequests:
		return provider.RateLimited(p.Name(), op, 0, err)
	case status >= 500:
		return provider.NewError(provider.KindTransient, p.Name(), op, err)
	default:
		return provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}
}
