package application

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/mokkoji/syncd/internal/sync/provider"
)

// maxRateLimitSleep caps the backoff for rate-limited calls.
const maxRateLimitSleep = 300 * time.Second

// RetryDecision is the outcome of consulting the retry policy after a
// failed provider call.
type RetryDecision struct {
	// Retry means sleep for Sleep and try again.
	Retry bool
	// Sleep is the backoff before the next attempt.
	Sleep time.Duration
	// FallbackToWindow means the incremental cursor was rejected: clear
	// it and retry immediately as a window sync. This is a strategy
	// change, not a backoff, and does not consume the attempt budget.
	FallbackToWindow bool
}

// RetryPolicy is a pure decision function over (attempt, error kind,
// retry-after hint). Jitter is mandatory so concurrent syncs don't
// retry in lockstep.
type RetryPolicy struct {
	maxRetries int
	jitter     func(lo, hi float64) float64
}

// NewRetryPolicy creates a policy with the given attempt budget.
// maxRetries of zero disables retrying entirely.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		maxRetries: maxRetries,
		jitter: func(lo, hi float64) float64 {
			return lo + rand.Float64()*(hi-lo)
		},
	}
}

// WithJitter overrides the jitter source. Tests use this to make
// sleeps deterministic.
func (p *RetryPolicy) WithJitter(jitter func(lo, hi float64) float64) *RetryPolicy {
	p.jitter = jitter
	return p
}

// Decide classifies the error and returns what the engine should do on
// attempt k (0-based).
func (p *RetryPolicy) Decide(attempt int, err error) RetryDecision {
	switch provider.KindOf(err) {
	case provider.KindInvalidDeltaToken:
		return RetryDecision{FallbackToWindow: true}

	case provider.KindRateLimited:
		if attempt >= p.maxRetries {
			return RetryDecision{}
		}
		base := provider.RetryAfterHint(err)
		if base <= 0 {
			base = expBackoff(attempt)
		}
		if base > maxRateLimitSleep {
			base = maxRateLimitSleep
		}
		return RetryDecision{Retry: true, Sleep: base + p.jitterDuration(0.1, 0.5)}

	case provider.KindTransient:
		if attempt >= p.maxRetries {
			return RetryDecision{}
		}
		return RetryDecision{Retry: true, Sleep: expBackoff(attempt) + p.jitterDuration(0.1, 1.0)}

	default:
		// AuthExpired, Permanent, Unsupported: give up immediately.
		return RetryDecision{}
	}
}

func (p *RetryPolicy) jitterDuration(lo, hi float64) time.Duration {
	return time.Duration(p.jitter(lo, hi) * float64(time.Second))
}

func expBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}
