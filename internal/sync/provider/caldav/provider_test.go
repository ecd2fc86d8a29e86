package caldav_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/sync/provider"
	"github.com/mokkoji/syncd/internal/sync/provider/caldav"
)

func newTestProvider(t *testing.T, handler http.Handler) *caldav.Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return caldav.NewProvider(caldav.Config{BaseURL: server.URL}, nil)
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(status), status)
	})
}

func TestProvider_ErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   provider.ErrorKind
	}{
		{"unauthorized is auth expired", http.StatusUnauthorized, provider.KindAuthExpired},
		{"throttled is rate limited", http.StatusTooManyRequests, provider.KindRateLimited},
		{"server error is transient", http.StatusServiceUnavailable, provider.KindTransient},
		{"forbidden is permanent", http.StatusForbidden, provider.KindPermanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, statusHandler(tc.status))

			_, err := p.ListCalendars(context.Background(), "user:pass")

			require.Error(t, err)
			assert.True(t, provider.IsKind(err, tc.kind), "got %v", err)
		})
	}
}

func TestProvider_TransportFailureIsTransient(t *testing.T) {
	// Nothing listens here; the request fails before any response.
	p := caldav.NewProvider(caldav.Config{BaseURL: "http://127.0.0.1:1"}, nil)

	err := p.DeleteEvent(context.Background(), "user:pass", "/calendars/user/default/", "evt-1")

	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindTransient), "got %v", err)
}

func TestProvider_MalformedCredentialIsPermanent(t *testing.T) {
	p := newTestProvider(t, statusHandler(http.StatusOK))

	_, err := p.ListCalendars(context.Background(), "no-colon")

	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindPermanent), "got %v", err)
}
