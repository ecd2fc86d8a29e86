package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mokkoji/syncd/internal/sync/domain"
)

// BreakerConfig configures the per-platform circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the number of probes allowed in half-open state.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state.
	Interval time.Duration
	// Timeout is the period of the open state.
	Timeout time.Duration
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// WithBreaker wraps an adapter with a circuit breaker so a platform
// outage fails fast instead of burning the retry budget of every sync
// job. Only transient and rate-limit errors count as failures; taxonomy
// errors like AuthExpired reflect the credential, not platform health.
// An open breaker surfaces as a transient error so the retry policy
// backs off normally.
func WithBreaker(inner Provider, cfg BreakerConfig, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        inner.Name().String(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("provider circuit breaker state changed",
				"platform", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			kind := KindOf(err)
			return kind != KindTransient && kind != KindRateLimited
		},
	}

	return &breakerProvider{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

type breakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker[any]
}

func (b *breakerProvider) Name() domain.PlatformType {
	return b.inner.Name()
}

func (b *breakerProvider) Capabilities() Capabilities {
	return b.inner.Capabilities()
}

func (b *breakerProvider) ListCalendars(ctx context.Context, token string) ([]CalendarMeta, error) {
	out, err := b.execute("list_calendars", func() (any, error) {
		return b.inner.ListCalendars(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return out.([]CalendarMeta), nil
}

func (b *breakerProvider) FetchEvents(ctx context.Context, token string, query FetchQuery) (*FetchResult, error) {
	out, err := b.execute("fetch_events", func() (any, error) {
		return b.inner.FetchEvents(ctx, token, query)
	})
	if err != nil {
		return nil, err
	}
	return out.(*FetchResult), nil
}

func (b *breakerProvider) UpsertEvent(ctx context.Context, token, calendarID string, event Event) (*Event, error) {
	out, err := b.execute("upsert_event", func() (any, error) {
		return b.inner.UpsertEvent(ctx, token, calendarID, event)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Event), nil
}

func (b *breakerProvider) DeleteEvent(ctx context.Context, token, calendarID, externalEventID string) error {
	_, err := b.execute("delete_event", func() (any, error) {
		return nil, b.inner.DeleteEvent(ctx, token, calendarID, externalEventID)
	})
	return err
}

func (b *breakerProvider) Close() error {
	return b.inner.Close()
}

func (b *breakerProvider) execute(op string, fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, NewError(KindTransient, b.inner.Name(), op, err)
	}
	return out, err
}
