package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatify/src/platform/problem"
)

func TestNewServiceRejectsNilRedisClient(t *testing.T) {
	_, err := NewService(&Options{
		LimitPerWindow: 10,
		Window:         time.Second,
		Logger:         zerolog.Nop(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid options")
}

func TestDenyRoundsRetryAfterUpToWholeSeconds(t *testing.T) {
	cases := []struct {
		retryAfter time.Duration
		want       time.Duration
	}{
		{1500 * time.Millisecond, 2 * time.Second},
		{2 * time.Second, 2 * time.Second},
		{10 * time.Millisecond, time.Second},
		{0, time.Second},
	}
	for _, tc := range cases {
		err := Decision{Allowed: false, RetryAfter: tc.retryAfter}.Deny()

		var typed *problem.Error
		require.ErrorAs(t, err, &typed)
		assert.Equal(t, problem.KindRateLimitExceeded, typed.Kind)
		assert.Equal(t, tc.want, typed.RetryAfter, "retry after %s", tc.retryAfter)
	}
}

func TestAdmissionScriptShape(t *testing.T) {
	// The whole check is one atomic script: increment, arm the window on
	// the first hit, report the remainder.
	assert.Contains(t, checkAndIncrementScript, `redis.call("INCR", key)`)
	assert.Contains(t, checkAndIncrementScript, `redis.call("EXPIRE", key, window)`)
	assert.Contains(t, checkAndIncrementScript, `redis.call("PTTL", key)`)
}
