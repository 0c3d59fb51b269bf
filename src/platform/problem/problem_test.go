package problem

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfTypedErrors(t *testing.T) {
	assert.Equal(t, KindInvalidArgument, KindOf(InvalidArgument("scopeId", "blank")))
	assert.Equal(t, KindRateLimitExceeded, KindOf(RateLimited(3*time.Second)))
	assert.Equal(t, KindEventProductionFailed, KindOf(New(KindEventProductionFailed, "broker down")))
}

func TestKindOfWrappedTypedError(t *testing.T) {
	inner := InvalidArgument("text", "too long")
	wrapped := fmt.Errorf("send failed: %w", inner)
	assert.Equal(t, KindInvalidArgument, KindOf(wrapped))
}

func TestKindOfContextErrors(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
}

func TestKindOfUnknownErrorIsFatal(t *testing.T) {
	assert.Equal(t, KindFatal, KindOf(errors.New("boom")))
}

func TestToProblemStatusTable(t *testing.T) {
	cases := []struct {
		err    error
		status int
		title  string
	}{
		{InvalidArgument("scopeId", "blank"), 400, "Bad Request"},
		{New(KindAuthRequired, "no identity"), 401, "Unauthorized"},
		{New(KindNotFound, "missing"), 404, "Not Found"},
		{New(KindConflict, "dup"), 409, "Conflict"},
		{RateLimited(time.Second), 429, "Too Many Requests"},
		{context.DeadlineExceeded, 504, "Gateway Timeout"},
		{New(KindEventProductionFailed, "broker"), 503, "Service Unavailable"},
		{errors.New("boom"), 500, "Internal Server Error"},
		{New(KindPermanentStoreError, "schema"), 500, "Internal Server Error"},
	}

	for _, tc := range cases {
		p := ToProblem(tc.err, "/api/messages", false)
		assert.Equal(t, tc.status, p.Status, "err=%v", tc.err)
		assert.Equal(t, tc.title, p.Title, "err=%v", tc.err)
		assert.Equal(t, "/api/messages", p.Instance)
		assert.Equal(t, "about:blank", p.Type)
	}
}

func TestToProblemDetailModes(t *testing.T) {
	err := InvalidArgument("senderId", "must not be blank")

	prod := ToProblem(err, "/x", false)
	assert.NotContains(t, prod.Detail, "senderId")

	dev := ToProblem(err, "/x", true)
	assert.Contains(t, dev.Detail, "senderId")
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	err := fmt.Errorf("denied: %w", RateLimited(1500*time.Millisecond))
	require.Equal(t, 2, RetryAfterSeconds(err))

	assert.Equal(t, 0, RetryAfterSeconds(errors.New("other")))
}
