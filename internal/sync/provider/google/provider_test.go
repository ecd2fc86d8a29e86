package google_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/sync/provider"
	"github.com/mokkoji/syncd/internal/sync/provider/google"
)

func newTestProvider(t *testing.T, handler http.Handler) *google.Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return google.NewProvider(google.Config{BaseURL: server.URL}, nil)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestProvider_FetchEvents_WindowMode(t *testing.T) {
	var gotQuery map[string][]string
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		gotQuery = r.URL.Query()
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{
				{
					"id":      "evt-1",
					"summary": "Standup",
					"start":   map[string]string{"dateTime": "2026-03-02T09:00:00+09:00"},
					"end":     map[string]string{"dateTime": "2026-03-02T09:30:00+09:00"},
					"updated": "2026-03-01T00:00:00Z",
					"etag":    `"v1"`,
				},
			},
			"nextSyncToken": "d1",
		})
	}))

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)
	updatedMin := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	result, err := p.FetchEvents(context.Background(), "tok", provider.FetchQuery{
		CalendarID: "primary",
		Since:      since,
		Until:      until,
		UpdatedMin: &updatedMin,
	})

	require.NoError(t, err)
	assert.Equal(t, since.Format(time.RFC3339), gotQuery["timeMin"][0])
	assert.Equal(t, until.Format(time.RFC3339), gotQuery["timeMax"][0])
	assert.Equal(t, updatedMin.Format(time.RFC3339), gotQuery["updatedMin"][0])
	assert.NotContains(t, gotQuery, "syncToken")

	require.Len(t, result.Events, 1)
	event := result.Events[0]
	assert.Equal(t, "evt-1", event.ExternalEventID)
	assert.Equal(t, "Standup", event.Title)
	// +09:00 normalized to UTC.
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), event.StartUTC)
	assert.False(t, event.AllDay)
	assert.Equal(t, `"v1"`, event.ExternalVersion)
	assert.Equal(t, "d1", result.NextDeltaToken)
	require.NotNil(t, result.MaxUpdatedAt)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *result.MaxUpdatedAt)
}

func TestProvider_FetchEvents_DeltaMode(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "d-old", q.Get("syncToken"))
		assert.Empty(t, q.Get("timeMin"))
		assert.Empty(t, q.Get("timeMax"))
		writeJSON(t, w, map[string]any{"items": []any{}, "nextSyncToken": "d-new"})
	}))

	result, err := p.FetchEvents(context.Background(), "tok", provider.FetchQuery{
		CalendarID: "primary",
		DeltaToken: "d-old",
	})

	require.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.Equal(t, "d-new", result.NextDeltaToken)
}

func TestProvider_FetchEvents_Pagination(t *testing.T) {
	calls := 0
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(t, w, map[string]any{
				"items": []map[string]any{
					{"id": "evt-1", "summary": "A", "start": map[string]string{"dateTime": "2026-03-02T09:00:00Z"}, "updated": "2026-03-01T00:00:00Z"},
				},
				"nextPageToken": "p2",
			})
		case "p2":
			writeJSON(t, w, map[string]any{
				"items": []map[string]any{
					{"id": "evt-2", "summary": "B", "start": map[string]string{"dateTime": "2026-03-03T09:00:00Z"}, "updated": "2026-03-02T00:00:00Z"},
				},
				"nextSyncToken": "d1",
			})
		default:
			t.Errorf("unexpected pageToken %q", r.URL.Query().Get("pageToken"))
		}
	}))

	result, err := p.FetchEvents(context.Background(), "tok", provider.FetchQuery{
		CalendarID: "primary",
		Since:      time.Now(),
		Until:      time.Now().Add(time.Hour),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, result.Events, 2)
	assert.Equal(t, "evt-1", result.Events[0].ExternalEventID)
	assert.Equal(t, "evt-2", result.Events[1].ExternalEventID)
	assert.Equal(t, "d1", result.NextDeltaToken)
	require.NotNil(t, result.MaxUpdatedAt)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), *result.MaxUpdatedAt)
}

func TestProvider_FetchEvents_AllDayAndCancelled(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{
				{
					"id":         "evt-allday",
					"summary":    "Holiday",
					"start":      map[string]string{"date": "2026-03-02"},
					"end":        map[string]string{"date": "2026-03-03"},
					"updated":    "2026-03-01T00:00:00Z",
					"recurrence": []string{"EXDATE:20260310", "RRULE:FREQ=YEARLY", "RDATE:20260320"},
				},
				{
					"id":      "evt-gone",
					"status":  "cancelled",
					"start":   map[string]string{"dateTime": "2026-03-05T10:00:00Z"},
					"updated": "2026-03-04T00:00:00Z",
				},
			},
		})
	}))

	result, err := p.FetchEvents(context.Background(), "tok", provider.FetchQuery{
		CalendarID: "primary",
		Since:      time.Now(),
		Until:      time.Now().Add(time.Hour),
	})

	require.NoError(t, err)
	require.Len(t, result.Events, 2)

	allDay := result.Events[0]
	assert.True(t, allDay.AllDay)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), allDay.StartUTC)
	assert.Equal(t, "RRULE:FREQ=YEARLY", allDay.RecurrenceRule)

	cancelled := result.Events[1]
	assert.True(t, cancelled.Deleted)
}

func TestProvider_FetchEvents_CancelledWithoutTimes(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Incremental responses carry cancelled events with only id and
		// status.
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{
				{"id": "evt-gone", "status": "cancelled", "updated": "2026-03-04T00:00:00Z"},
				{"id": "evt-bare", "status": "cancelled"},
			},
			"nextSyncToken": "d2",
		})
	}))

	result, err := p.FetchEvents(context.Background(), "tok", provider.FetchQuery{
		CalendarID: "primary",
		DeltaToken: "d1",
	})

	require.NoError(t, err)
	require.Len(t, result.Events, 2)

	gone := result.Events[0]
	assert.Equal(t, "evt-gone", gone.ExternalEventID)
	assert.True(t, gone.Deleted)
	require.NotNil(t, gone.ExternalUpdatedAt)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), *gone.ExternalUpdatedAt)

	bare := result.Events[1]
	assert.Equal(t, "evt-bare", bare.ExternalEventID)
	assert.True(t, bare.Deleted)
	assert.Nil(t, bare.ExternalUpdatedAt)
}

func TestProvider_FetchEvents_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		wantKind   provider.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, "", provider.KindAuthExpired},
		{"rate limited", http.StatusTooManyRequests, `{}`, "7", provider.KindRateLimited},
		{"sync token expired", http.StatusGone, `{}`, "", provider.KindInvalidDeltaToken},
		{"sync token invalid by message", http.StatusBadRequest, `{"error":{"message":"Invalid sync token value."}}`, "", provider.KindInvalidDeltaToken},
		{"server error", http.StatusServiceUnavailable, `{}`, "", provider.KindTransient},
		{"other 4xx", http.StatusForbidden, `{}`, "", provider.KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := p.FetchEvents(context.Background(), "tok", provider.FetchQuery{
				CalendarID: "primary",
				Since:      time.Now(),
				Until:      time.Now().Add(time.Hour),
			})

			require.Error(t, err)
			assert.Equal(t, tt.wantKind, provider.KindOf(err))
			if tt.retryAfter != "" {
				assert.Equal(t, 7*time.Second, provider.RetryAfterHint(err))
			}
		})
	}
}

func TestProvider_UpsertEvent(t *testing.T) {
	t.Run("create posts without id", func(t *testing.T) {
		p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/calendars/primary/events", r.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Dinner", body["summary"])

			writeJSON(t, w, map[string]any{
				"id":      "evt-new",
				"summary": "Dinner",
				"start":   map[string]string{"dateTime": "2026-03-02T18:00:00Z"},
				"end":     map[string]string{"dateTime": "2026-03-02T20:00:00Z"},
				"updated": "2026-03-02T00:00:00Z",
				"etag":    `"v1"`,
			})
		}))

		end := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
		result, err := p.UpsertEvent(context.Background(), "tok", "primary", provider.Event{
			Title:    "Dinner",
			StartUTC: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
			EndUTC:   &end,
		})

		require.NoError(t, err)
		assert.Equal(t, "evt-new", result.ExternalEventID)
		assert.Equal(t, `"v1"`, result.ExternalVersion)
	})

	t.Run("update puts to event path", func(t *testing.T) {
		p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/calendars/primary/events/evt-1", r.URL.Path)
			writeJSON(t, w, map[string]any{
				"id":      "evt-1",
				"summary": "Dinner",
				"start":   map[string]string{"dateTime": "2026-03-02T18:00:00Z"},
				"updated": "2026-03-02T00:00:00Z",
			})
		}))

		_, err := p.UpsertEvent(context.Background(), "tok", "primary", provider.Event{
			ExternalEventID: "evt-1",
			Title:           "Dinner",
			StartUTC:        time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	})
}

func TestProvider_DeleteEvent(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/calendars/primary/events/evt-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, p.DeleteEvent(context.Background(), "tok", "primary", "evt-1"))
}

func TestProvider_ListCalendars(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/calendarList", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{
				{"id": "primary", "summary": "Personal", "primary": true},
				{"id": "work@example.com", "summary": "Work"},
			},
		})
	}))

	calendars, err := p.ListCalendars(context.Background(), "tok")

	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.True(t, calendars[0].Primary)
	assert.Equal(t, "work@example.com", calendars[1].ID)
}

func TestProvider_Capabilities(t *testing.T) {
	p := google.NewProvider(google.Config{}, nil)
	caps := p.Capabilities()
	assert.True(t, caps.Read)
	assert.True(t, caps.Write)
	assert.True(t, caps.Delta)
}
