package naver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/sync/provider"
	"github.com/mokkoji/syncd/internal/sync/provider/naver"
)

func TestProvider_UpsertEvent_FormPost(t *testing.T) {
	var gotForm map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendar/createSchedule.json", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"id":"naver-evt-1"}}`))
	}))
	defer server.Close()

	p := naver.NewProvider(naver.Config{BaseURL: server.URL}, nil)

	result, err := p.UpsertEvent(context.Background(), "tok", naver.DefaultCalendarID, provider.Event{
		Title:    "Dinner",
		StartUTC: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	assert.Equal(t, "defaultCalendarId", gotForm["calendarId"][0])
	ics := gotForm["scheduleIcalString"][0]
	assert.True(t, strings.HasPrefix(ics, "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, ics, "SUMMARY:Dinner")
	assert.Equal(t, "naver-evt-1", result.ExternalEventID)
	require.NotNil(t, result.ExternalUpdatedAt)
}

func TestProvider_UpsertEvent_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind provider.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, provider.KindAuthExpired},
		{"rate limited", http.StatusTooManyRequests, provider.KindRateLimited},
		{"server error", http.StatusInternalServerError, provider.KindTransient},
		{"bad request", http.StatusBadRequest, provider.KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			p := naver.NewProvider(naver.Config{BaseURL: server.URL}, nil)
			_, err := p.UpsertEvent(context.Background(), "tok", naver.DefaultCalendarID, provider.Event{
				Title:    "Dinner",
				StartUTC: time.Now(),
			})

			require.Error(t, err)
			assert.Equal(t, tt.wantKind, provider.KindOf(err))
		})
	}
}

func TestProvider_FetchEvents_NonURLUnsupported(t *testing.T) {
	p := naver.NewProvider(naver.Config{}, nil)

	_, err := p.FetchEvents(context.Background(), "tok", provider.FetchQuery{
		CalendarID: naver.DefaultCalendarID,
		Since:      time.Now(),
		Until:      time.Now().Add(time.Hour),
	})

	require.Error(t, err)
	assert.Equal(t, provider.KindUnsupported, provider.KindOf(err))
}

func TestProvider_FetchEvents_ICSFeedURL(t *testing.T) {
	feed := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//Feed//EN",
		"BEGIN:VEVENT",
		"UID:inside",
		"SUMMARY:Inside window",
		"DTSTART:20260302T180000Z",
		"DTSTAMP:20260301T000000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:before",
		"SUMMARY:Before window",
		"DTSTART:20260101T180000Z",
		"DTSTAMP:20260101T000000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:at-until",
		"SUMMARY:At until boundary",
		"DTSTART:20260401T000000Z",
		"DTSTAMP:20260301T000000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	p := naver.NewProvider(naver.Config{}, nil)

	result, err := p.FetchEvents(context.Background(), "tok", provider.FetchQuery{
		CalendarID: server.URL,
		Since:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Until:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	// [since, until) on start time: the boundary event is excluded.
	require.Len(t, result.Events, 1)
	assert.Equal(t, "inside", result.Events[0].ExternalEventID)
	assert.Empty(t, result.NextDeltaToken)
	require.NotNil(t, result.MaxUpdatedAt)
}

func TestProvider_DeleteEvent_Unsupported(t *testing.T) {
	p := naver.NewProvider(naver.Config{}, nil)

	err := p.DeleteEvent(context.Background(), "tok", naver.DefaultCalendarID, "evt-1")

	require.Error(t, err)
	assert.Equal(t, provider.KindUnsupported, provider.KindOf(err))
	assert.Contains(t, err.Error(), "marked as deleted locally")
}

func TestProvider_Capabilities(t *testing.T) {
	p := naver.NewProvider(naver.Config{}, nil)
	caps := p.Capabilities()
	assert.False(t, caps.Read)
	assert.True(t, caps.Write)
	assert.False(t, caps.Delta)
}
