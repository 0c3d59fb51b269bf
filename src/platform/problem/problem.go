package problem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"

	"chatify/src/platform/perr"
)

// Kind is the closed set of failure categories that cross component
// boundaries. Everything a transport or consumer loop needs to decide is
// derivable from the kind alone.
type Kind string

const (
	KindInvalidArgument       Kind = "invalid_argument"
	KindAuthRequired          Kind = "auth_required"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindRateLimitExceeded     Kind = "rate_limit_exceeded"
	KindTimeout               Kind = "timeout"
	KindEventProductionFailed Kind = "event_production_failed"
	KindTransientStoreError   Kind = "transient_store_error"
	KindPermanentStoreError   Kind = "permanent_store_error"
	KindCancelled             Kind = "cancelled"
	KindFatal                 Kind = "fatal"
)

// Error is the typed failure result used across service boundaries.
type Error struct {
	Kind       Kind
	Field      string        // set for KindInvalidArgument
	RetryAfter time.Duration // set for KindRateLimitExceeded
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: field '%s': %s", e.Kind, e.Field, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// InvalidArgument reports a domain policy violation for a named field.
func InvalidArgument(field, reason string) *Error {
	return &Error{Kind: KindInvalidArgument, Field: field, Message: reason}
}

// RateLimited reports an admission denial with the window remainder.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimitExceeded,
		RetryAfter: retryAfter,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter),
	}
}

// KindOf classifies an arbitrary error. Typed errors keep their kind,
// context errors map to Timeout/Cancelled, oops codes are bridged, and
// everything else is Fatal for the caller to treat as unknown.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	var oopsErr oops.OopsError
	if errors.As(err, &oopsErr) {
		switch oopsErr.Code() {
		case perr.EINVAL:
			return KindInvalidArgument
		case perr.EAUTH:
			return KindAuthRequired
		case perr.ENOENT:
			return KindNotFound
		case perr.EEXIST:
			return KindConflict
		case perr.ETIMEDOUT:
			return KindTimeout
		case perr.ECANCELED:
			return KindCancelled
		case perr.EAGAIN, perr.ENOTCONN, perr.EPIPE:
			return KindTransientStoreError
		}
	}

	return KindFatal
}

// IsTerminal reports whether a consumer loop should commit past a record
// that failed with this error instead of retrying it.
func IsTerminal(kind Kind) bool {
	return kind == KindInvalidArgument || kind == KindPermanentStoreError
}
