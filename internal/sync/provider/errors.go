package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/mokkoji/syncd/internal/sync/domain"
)

// ErrorKind classifies provider failures so the retry policy can
// pattern-match without string inspection.
type ErrorKind int

const (
	// KindPermanent covers malformed payloads and 4xx responses with no
	// better classification. Never retried.
	KindPermanent ErrorKind = iota
	// KindRateLimited means the platform throttled us; RetryAfter may
	// carry the platform's hint.
	KindRateLimited
	// KindAuthExpired means the credential was rejected and the user
	// must re-authenticate.
	KindAuthExpired
	// KindInvalidDeltaToken means the incremental cursor is no longer
	// valid and the sync must fall back to a window fetch.
	KindInvalidDeltaToken
	// KindTransient covers network failures and 5xx responses.
	KindTransient
	// KindUnsupported means the adapter cannot perform the operation.
	KindUnsupported
)

// String returns the kind's name.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuthExpired:
		return "auth_expired"
	case KindInvalidDeltaToken:
		return "invalid_delta_token"
	case KindTransient:
		return "transient"
	case KindUnsupported:
		return "unsupported"
	default:
		return "permanent"
	}
}

// Error is the taxonomy-carrying provider error.
type Error struct {
	Kind       ErrorKind
	Platform   domain.PlatformType
	Op         string
	RetryAfter time.Duration // only meaningful for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", e.Platform, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", e.Platform, e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a provider error.
func NewError(kind ErrorKind, platform domain.PlatformType, op string, err error) *Error {
	return &Error{Kind: kind, Platform: platform, Op: op, Err: err}
}

// RateLimited builds a rate-limit error with an optional retry hint.
func RateLimited(platform domain.PlatformType, op string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimited, Platform: platform, Op: op, RetryAfter: retryAfter, Err: err}
}

// Unsupported builds an unsupported-operation error with a hint for
// the caller.
func Unsupported(platform domain.PlatformType, op, hint string) *Error {
	return &Error{Kind: KindUnsupported, Platform: platform, Op: op, Err: errors.New(hint)}
}

// KindOf extracts the error kind. Errors outside the taxonomy, and
// context cancellation, classify as permanent so the retry policy
// gives up immediately.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindPermanent
}

// RetryAfterHint extracts the rate-limit hint, or zero.
func RetryAfterHint(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == KindRateLimited {
		return pe.RetryAfter
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
