package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// The correlation id rides the request context so every log line of one
// logical request can be tied together without parameter threading.

const HeaderName = "X-Correlation-ID"

const maxIDLength = 128

type contextKey struct{}

// FromContext returns the correlation id carried by ctx, or "" if none.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// WithID attaches a correlation id to ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Ensure returns the proposed id when it is syntactically valid, otherwise
// a freshly generated one. The returned id is always echoed to the client.
func Ensure(proposed string) string {
	if Valid(proposed) {
		return proposed
	}
	return uuid.NewString()
}

// Valid reports whether s is an acceptable inbound correlation id:
// non-empty, bounded and visible ASCII only.
func Valid(s string) bool {
	if len(s) == 0 || len(s) > maxIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= 0x20 || s[i] >= 0x7f {
			return false
		}
	}
	return true
}

// NowUTC is the clock events are stamped with: UTC with the platform's
// full sub-millisecond precision.
func NowUTC() time.Time {
	return time.Now().UTC()
}
