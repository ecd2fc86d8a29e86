// Package caldav implements a generic CalDAV adapter (Fastmail,
// Nextcloud, self-hosted). Credentials are "username:password"; the
// calendar ID is the collection path on the server.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

const prodID = "-//Mokkoji//Calendar//KR"

// Config configures the CalDAV adapter.
type Config struct {
	// BaseURL is the CalDAV server root.
	BaseURL string
	// Timeout bounds every HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Provider is the CalDAV adapter: read and write, no delta support.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProvider creates a CalDAV adapter.
func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Name returns the platform this adapter serves.
func (p *Provider) Name() domain.PlatformType {
	return domain.PlatformCalDAV
}

// Capabilities reports read/write without delta; CalDAV sync-tokens
// are not implemented, so every fetch is a window query.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Read: true, Write: true}
}

// Close releases the adapter's resources.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// statusRecorder captures the status of the last error response so
// failures can be classified without reaching into the webdav client's
// unexported error type.
type statusRecorder struct {
	inner http.RoundTripper

	mu   sync.Mutex
	code int
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.inner.RoundTrip(req)
	if err == nil {
		r.mu.Lock()
		if resp.StatusCode >= 400 {
			r.code = resp.StatusCode
		} else {
			r.code = 0
		}
		r.mu.Unlock()
	}
	return resp, err
}

func (r *statusRecorder) last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// client builds a per-operation webdav client. Each gets its own
// status recorder; operations run sequentially on their client, so the
// recorded status always belongs to the error being classified.
func (p *Provider) client(token string) (*caldav.Client, *statusRecorder, error) {
	username, password, ok := strings.Cut(token, ":")
	if !ok {
		return nil, nil, fmt.Errorf("caldav credential must be username:password")
	}

	transport := p.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	rec := &statusRecorder{inner: transport}
	httpClient := &http.Client{Transport: rec, Timeout: p.httpClient.Timeout}

	client, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(httpClient, username, password),
		p.baseURL,
	)
	if err != nil {
		return nil, nil, err
	}
	return client, rec, nil
}

// ListCalendars enumerates the user's calendar collections.
func (p *Provider) ListCalendars(ctx context.Context, token string) ([]provider.CalendarMeta, error) {
	const op = "list_calendars"

	client, rec, err := p.client(token)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, p.classify(op, err, rec.last())
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, p.classify(op, err, rec.last())
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, p.classify(op, err, rec.last())
	}

	calendars := make([]provider.CalendarMeta, 0, len(cals))
	for i, cal := range cals {
		calendars = append(calendars, provider.CalendarMeta{
			ID:      cal.Path,
			Name:    cal.Name,
			Primary: i == 0,
		})
	}
	return calendars, nil
}

// FetchEvents runs a time-range calendar-query over [since, until].
func (p *Provider) FetchEvents(ctx context.Context, token string, query provider.FetchQuery) (*provider.FetchResult, error) {
	const op = "fetch_events"

	client, rec, err := p.client(token)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}

	calQuery := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{
				{
					Name:  "VEVENT",
					Props: []string{"UID", "SUMMARY", "DESCRIPTION", "LOCATION", "DTSTART", "DTEND", "DTSTAMP", "LAST-MODIFIED", "RRULE", "STATUS", "ATTENDEE"},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: query.Since,
					End:   query.Until,
				},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, query.CalendarID, calQuery)
	if err != nil {
		return nil, p.classify(op, err, rec.last())
	}

	result := &provider.FetchResult{}
	for _, obj := range objects {
		event := p.parseObject(&obj, query.CalendarID)
		if event == nil {
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
	return result, nil
}

// UpsertEvent puts a single-event VCALENDAR at a deterministic path
// derived from the UID, so re-submission updates in place.
func (p *Provider) UpsertEvent(ctx context.Context, token, calendarID string, event provider.Event) (*provider.Event, error) {
	const op = "upsert_event"

	client, rec, err := p.client(token)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}

	uid := event.ExternalEventID
	if uid == "" {
		uid = uuid.NewString()
	}

	cal := toICalendar(event, uid)
	path := eventPath(calendarID, uid)

	obj, err := client.PutCalendarObject(ctx, path, cal)
	if err != nil {
		return nil, p.classify(op, err, rec.last())
	}

	upserted := event
	upserted.ExternalEventID = uid
	upserted.ExternalVersion = obj.ETag
	now := time.Now().UTC()
	upserted.ExternalUpdatedAt = &now
	return &upserted, nil
}

// DeleteEvent removes the event object.
func (p *Provider) DeleteEvent(ctx context.Context, token, calendarID, externalEventID string) error {
	const op = "delete_event"

	client, rec, err := p.client(token)
	if err != nil {
		return provider.NewError(provider.KindPermanent, p.Name(), op, err)
	}
	if err := client.RemoveAll(ctx, eventPath(calendarID, externalEventID)); err != nil {
		return p.classify(op, err, rec.last())
	}
	return nil
}

func eventPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}

func (p *Provider) classify(op string, err error, status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return provider.NewError(provider.KindAuthExpired, p.Name(), op, err)
	case status == http.StatusTooManyRequests:
		return provider.RateLimited(p.Name(), op, 0, err)
	case status >= 500:
		return provider.NewError(provider.KindTransient, p.Name(), op, err)
	case status >= 400:
		return provider.NewError(provider.KindPermanent, p.Name(), op, err)
	default:
		// Transport-level failures are transient.
		return provider.NewError(provider.KindTransient, p.Name(), op, err)
	}
}

func toICalendar(event provider.Event, uid string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, event.StartUTC.UTC())
	end := event.StartUTC
	if event.EndUTC != nil {
		end = *event.EndUTC
	}
	ev.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	ev.Props.SetText(ical.PropSummary, event.Title)
	if event.Description != "" {
		ev.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ev.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.RecurrenceRule != "" {
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = strings.TrimPrefix(event.RecurrenceRule, "RRULE:")
		ev.Props.Set(rrule)
	}

	cal.Children = append(cal.Children, ev.Component)
	return cal
}

func (p *Provider) parseObject(obj *caldav.CalendarObject, calendarID string) *provider.Event {
	if obj == nil || obj.Data == nil {
		return nil
	}

	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}

		icalEvent := ical.Event{Component: child}
		start, err := icalEvent.DateTimeStart(time.UTC)
		if err != nil {
			p.logger.Warn("skipping caldav event without start", "path", obj.Path, "error", err)
			return nil
		}

		startProp := child.Props.Get(ical.PropDateTimeStart)
		allDay := startProp != nil && startProp.ValueType() == ical.ValueDate

		event := &provider.Event{
			ExternalCalendarID: calendarID,
			StartUTC:           start.UTC(),
			AllDay:             allDay,
			ExternalVersion:    obj.ETag,
		}

		if uid, err := child.Props.Text(ical.PropUID); err == nil && uid != "" {
			event.ExternalEventID = uid
		} else {
			event.ExternalEventID = obj.Path
		}
		if summary, err := child.Props.Text(ical.PropSummary); err == nil && summary != "" {
			event.Title = summary
		} else {
			event.Title = "No Title"
		}
		if desc, err := child.Props.Text(ical.PropDescription); err == nil {
			event.Description = desc
		}
		if loc, err := child.Props.Text(ical.PropLocation); err == nil {
			event.Location = loc
		}
		if status, err := child.Props.Text(ical.PropStatus); err == nil {
			event.Deleted = strings.EqualFold(status, "CANCELLED")
		}
		if end, err := icalEvent.DateTimeEnd(time.UTC); err == nil && !end.IsZero() {
			e := end.UTC()
			event.EndUTC = &e
		}
		if rrule := child.Props.Get(ical.PropRecurrenceRule); rrule != nil && rrule.Value != "" {
			event.RecurrenceRule = "RRULE:" + rrule.Value
		}

		updated, err := child.Props.DateTime(ical.PropLastModified, time.UTC)
		if err != nil || updated.IsZero() {
			updated, _ = child.Props.DateTime(ical.PropDateTimeStamp, time.UTC)
		}
		if !updated.IsZero() {
			u := updated.UTC()
			event.ExternalUpdatedAt = &u
		}

		for _, attProp := range child.Props.Values(ical.PropAttendee) {
			email := strings.TrimPrefix(strings.TrimPrefix(attProp.Value, "MAILTO:"), "mailto:")
			if email == "" {
				continue
			}
			event.Attendees = append(event.Attendees, domain.Attendee{
				Email:  email,
				Name:   attProp.Params.Get(ical.ParamCommonName),
				Status: attProp.Params.Get(ical.ParamParticipationStatus),
			})
		}

		return event
	}
	return nil
}
