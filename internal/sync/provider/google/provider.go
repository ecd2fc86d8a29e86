// Package google implements the Google Calendar v3 adapter.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

const (
	// DefaultBaseURL is the Google Calendar API v3 endpoint.
	DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

	// maxResultsPerPage is the API's documented page-size ceiling.
	maxResultsPerPage = 2500
)

// Config configures the Google adapter.
type Config struct {
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// Timeout bounds every HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Provider is the Google Calendar adapter: read, write and incremental
// sync via the API's syncToken mechanism.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProvider creates a Google Calendar adapter.
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
	}
}

// Name returns the platform this adapter serves.
func (p *Provider) Name() domain.PlatformType {
	return domain.PlatformGoogle
}

// Capabilities reports full read/write/delta support.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Read: true, Write: true, Delta: true}
}

// Close releases the adapter's resources.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// client wraps the shared pool with a bearer-token transport.
func (p *Provider) client(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// Wire types for the v3 API.

type calendarListPage struct {
	Items []struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
		Primary bool   `json:"primary"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

type eventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventAttendee struct {
	Email          string `json:"email,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

type eventItem struct {
	ID          string          `json:"id,omitempty"`
	Status      string          `json:"status,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	Start       *eventTime      `json:"start,omitempty"`
	End         *eventTime      `json:"end,omitempty"`
	Updated     string          `json:"updated,omitempty"`
	Etag        string          `json:"etag,omitempty"`
	Recurrence  []string        `json:"recurrence,omitempty"`
	Attendees   []eventAttendee `json:"attendees,omitempty"`
}

type eventsPage struct {
	Items         []eventItem `json:"items"`
	NextPageToken string      `json:"nextPageToken"`
	NextSyncToken string      `json:"nextSyncToken"`
}

// ListCalendars enumerates the calendars visible to the token.
func (p *Provider) ListCalendars(ctx context.Context, token string) ([]provider.CalendarMeta, error) {
	const op = "list_calendars"

	var calendars []provider.CalendarMeta
	pageToken := ""
	for {
		u := p.baseURL + "/users/me/calendarList"
		if pageToken != "" {
			u += "?pageToken=" + url.QueryEscape(pageToken)
		}

		var page calendarListPage
		if err := p.getJSON(ctx, token, op, u, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			calendars = append(calendars, provider.CalendarMeta{
				ID:      item.ID,
				Name:    item.Summary,
				Primary: item.Primary,
			})
		}

		if page.NextPageToken == "" {
			return calendars, nil
		}
		pageToken = page.NextPageToken
	}
}

// FetchEvents returns events for one calendar. With a delta token it
// runs in incremental mode; otherwise it fetches the [since, until]
// window, optionally bounded below by updatedMin. Pages are drained
// until the API yields a sync token.
func (p *Provider) FetchEvents(ctx context.Context, token string, query provider.FetchQuery) (*provider.FetchResult, error) {
	const op = "fetch_events"

	base := fmt.Sprintf("%s/calendars/%s/events", p.baseURL, url.PathEscape(query.CalendarID))

	result := &provider.FetchResult{}
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("maxResults", strconv.Itoa(maxResultsPerPage))
		params.Set("singleEvents", "true")
		if query.DeltaToken != "" {
			params.Set("syncToken", query.DeltaToken)
		} else {
			params.Set("timeMin", query.Since.UTC().Format(time.RFC3339))
			params.Set("timeMax", query.Until.UTC().Format(time.RFC3339))
			if query.UpdatedMin != nil {
				params.Set("updatedMin", query.UpdatedMin.UTC().Format(time.RFC3339))
			}
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page eventsPage
		if err := p.getJSON(ctx, token, op, base+"?"+params.Encode(), &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			event, err := p.parseEvent(item, query.CalendarID)
			if err != nil {
				p.logger.Warn("skipping unparseable event",
					"platform", p.Name(),
					"event_id", item.ID,
					"error", err,
				)
				continue
			}
			result.Events = append(result.Events, *event)
			if event.ExternalUpdatedAt != nil {
				if result.MaxUpdatedAt == nil || event.ExternalUpdatedAt.After(*result.MaxUpdatedAt) {
					t := *event.ExternalUpdatedAt
					result.MaxUpdatedAt = &t
				}
			}
		}

		if page.NextPageToken == "" {
			result.NextDeltaToken = page.NextSyncToken
			return result, nil
		}
		pageToken = page.NextPageToken
	}
}

// UpsertEvent creates or updates one event. An event with an external
// ID is updated in place; otherwise a new event is inserted.
func (p *Provider) UpsertEvent(ctx context.Context, token, calendarID string, event provider.Event) (*provider.Event, error) {
	const op = "upsert_event"

	body := eventItem{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       formatEventTime(event.StartUTC, event.AllDay),
	}
	end := event.StartUTC
	if event.EndUTC != nil {
		end = *event.EndUTC
	}
	body.End = formatEventTime(end, event.AllDay)

	if event.RecurrenceRule != "" {
		body.Recurrence = []string{event.RecurrenceRule}
	}
	for _, att := range event.Attendees {
		if att.Email == "" {
			continue
		}
		status := att.Status
		if status == "" {
			status = "needsAction"
		}
		body.Attendees = append(body.Attendees, eventAttendee{
			Email:          att.Email,
			DisplayName:    att.Name,
			ResponseStatus: status,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}

	method := http.MethodPost
	u := fmt.Sprintf("%s/calendars/%s/events", p.baseURL, url.PathEscape(calendarID))
	if event.ExternalEventID != "" {
		method = http.MethodPut
		u += "/" + url.PathEscape(event.ExternalEventID)
	}

	resp, err := p.do(ctx, token, op, method, u, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var item eventItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}

	upserted, err := p.parseEvent(item, calendarID)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}
	return upserted, nil
}

// DeleteEvent removes one event.
func (p *Provider) DeleteEvent(ctx context.Context, token, calendarID, externalEventID string) error {
	const op = "delete_event"

	u := fmt.Sprintf("%s/calendars/%s/events/%s",
		p.baseURL, url.PathEscape(calendarID), url.PathEscape(externalEventID))

	resp, err := p.do(ctx, token, op, http.MethodDelete, u, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// getJSON performs a GET and decodes the JSON response.
func (p *Provider) getJSON(ctx context.Context, token, op, u string, out any) error {
	resp, err := p.do(ctx, token, op, http.MethodGet, u, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}
	return nil
}

// do executes one request and classifies non-2xx responses into the
// provider error taxonomy. No retries happen here; the engine owns
// cross-attempt policy.
func (p *Provider) do(ctx context.Context, token, op, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", "Mokkoji/1.0")

	resp, err := p.client(ctx, token).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, provider.NewError(provider.KindPermanent, p.Name(), op, ctx.Err())
		}
		return nil, provider.NewError(provider.KindTransient, p.Name(), op, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, p.classify(op, resp, string(payload))
}

func (p *Provider) classify(op string, resp *http.Response, body string) error {
	err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return provider.NewError(provider.KindAuthExpired, p.Name(), op, err)
	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.RateLimited(p.Name(), op, parseRetryAfter(resp), err)
	case resp.StatusCode == http.StatusGone && op == "fetch_events":
		// The API responds 410 when a sync token has expired.
		return provider.NewError(provider.KindInvalidDeltaToken, p.Name(), op, err)
	case strings.Contains(body, "Invalid sync token"):
		return provider.NewError(provider.KindInvalidDeltaToken, p.Name(), op, err)
	case resp.StatusCode >= 500:
		return provider.NewError(provider.KindTransient, p.Name(), op, err)
	default:
		return provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// parseEvent converts a wire event to the neutral model. A date-only
// start marks an all-day event normalized to midnight UTC.
func (p *Provider) parseEvent(item eventItem, calendarID string) (*provider.Event, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("event has no id")
	}
	if item.Start == nil {
		// Incremental responses strip cancelled events down to id and
		// status; surface them as tombstones so the deletion propagates.
		if item.Status == "cancelled" {
			return cancelledStub(item, calendarID)
		}
		return nil, fmt.Errorf("event %s has no start", item.ID)
	}

	start, allDay, err := parseEventTime(item.Start)
	if err != nil {
		return nil, fmt.Errorf("event %s start: %w", item.ID, err)
	}

	event := &provider.Event{
		ExternalEventID:    item.ID,
		ExternalCalendarID: calendarID,
		Title:              item.Summary,
		Description:        item.Description,
		StartUTC:           start,
		AllDay:             allDay,
		Location:           item.Location,
		RecurrenceRule:     firstRRule(item.Recurrence),
		ExternalVersion:    item.Etag,
		Deleted:            item.Status == "cancelled",
	}
	if event.Title == "" {
		event.Title = "No Title"
	}

	if item.End != nil {
		end, _, err := parseEventTime(item.End)
		if err != nil {
			return nil, fmt.Errorf("event %s end: %w", item.ID, err)
		}
		event.EndUTC = &end
	}

	if item.Updated != "" {
		updated, err := time.Parse(time.RFC3339, item.Updated)
		if err != nil {
			return nil, fmt.Errorf("event %s updated: %w", item.ID, err)
		}
		u := updated.UTC()
		event.ExternalUpdatedAt = &u
	}

	for _, att := range item.Attendees {
		if att.Email == "" {
			continue
		}
		status := att.ResponseStatus
		if status == "" {
			status = "needsAction"
		}
		event.Attendees = append(event.Attendees, domain.Attendee{
			Email:  att.Email,
			Name:   att.DisplayName,
			Status: status,
		})
	}

	return event, nil
}

// cancelledStub builds a tombstone for a cancelled event whose payload
// carries no times.
func cancelledStub(item eventItem, calendarID string) (*provider.Event, error) {
	event := &provider.Event{
		ExternalEventID:    item.ID,
		ExternalCalendarID: calendarID,
		ExternalVersion:    item.Etag,
		Deleted:            true,
	}
	if item.Updated != "" {
		updated, err := time.Parse(time.RFC3339, item.Updated)
		if err != nil {
			return nil, fmt.Errorf("event %s updated: %w", item.ID, err)
		}
		u := updated.UTC()
		event.ExternalUpdatedAt = &u
	}
	return event, nil
}

func parseEventTime(et *eventTime) (time.Time, bool, error) {
	if et.DateTime != "" {
		t, err := time.Parse(time.RFC3339, et.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.UTC(), false, nil
	}
	if et.Date != "" {
		t, err := time.Parse("2006-01-02", et.Date)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.UTC(), true, nil
	}
	return time.Time{}, false, fmt.Errorf("neither date nor dateTime set")
}

func formatEventTime(t time.Time, allDay bool) *eventTime {
	if allDay {
		return &eventTime{Date: t.UTC().Format("2006-01-02")}
	}
	return &eventTime{DateTime: t.UTC().Format(time.RFC3339), TimeZone: "UTC"}
}

// firstRRule extracts the RRULE line from the API's recurrence list,
// which may also carry EXDATE and RDATE lines.
func firstRRule(recurrence []string) string {
	for _, line := range recurrence {
		if strings.HasPrefix(line, "RRULE:") {
			return line
		}
	}
	return ""
}
