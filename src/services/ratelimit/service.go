package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"chatify/src/clients/redis"
	"chatify/src/platform/problem"
	"chatify/src/platform/validation"
)

const svcBootstrapTimeout = 5 * time.Second

// One round trip per admission check. The script increments the
// sender's bucket, arms the window expiry on the first hit and reports
// the remaining window so a denial can carry an accurate Retry-After.
/*
	-- KEYS[1] = counter key
	-- ARGV[1] = window in seconds
*/
const checkAndIncrementScript = `
local key    = KEYS[1]
local window = tonumber(ARGV[1])

local count = redis.call("INCR", key)

if count == 1 then
    redis.call("EXPIRE", key, window)
end

local pttl = redis.call("PTTL", key)

return {count, pttl}
`

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Service struct {
	redis          *redis.Client
	evalSha        string
	limitPerWindow int64
	window         time.Duration
	logger         zerolog.Logger
}

type Options struct {
	RedisClient    *redis.Client `validate:"required"`
	LimitPerWindow int64         `validate:"gte=1,lte=100000"`
	Window         time.Duration `validate:"gte=1000000000,lte=3600000000000"` // 1s to 1h
	Logger         zerolog.Logger
}

func NewService(opts *Options) (*Service, error) {
	if err := validation.Instance.Struct(opts); err != nil {
		return nil, fmt.Errorf("can't create rate limit service: invalid options: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), svcBootstrapTimeout)
	defer cancel()

	evalSha, err := opts.RedisClient.Driver.ScriptLoad(ctx, checkAndIncrementScript).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to init service: can't load Lua script responsible for admission checks: %w", err)
	}

	return &Service{
		redis:          opts.RedisClient,
		evalSha:        evalSha,
		limitPerWindow: opts.LimitPerWindow,
		window:         opts.Window,
		logger:         opts.Logger,
	}, nil
}

// CheckAndIncrement admits or denies one message from the sender. The
// bucket is advanced even when a later pipeline step fails, which keeps
// backpressure intact.
func (s *Service) CheckAndIncrement(ctx context.Context, senderID string) (Decision, error) {
	values, err := s.redis.Driver.EvalSha(
		ctx,
		s.evalSha,
		[]string{"rate:{" + senderID + "}"},
		int64(s.window.Seconds()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("admission check for sender '%s' failed: %w", senderID, err)
	}
	if len(values) != 2 {
		return Decision{}, fmt.Errorf("admission check for sender '%s' returned %d values, want 2", senderID, len(values))
	}

	count, pttl := values[0], values[1]
	if count <= s.limitPerWindow {
		return Decision{Allowed: true, RetryAfter: 0}, nil
	}

	retryAfter := s.window
	if pttl > 0 {
		retryAfter = time.Duration(pttl) * time.Millisecond
	}

	s.logger.Debug().Msgf("sender '%s' over limit: %d/%d, retry after %s", senderID, count, s.limitPerWindow, retryAfter)

	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

// Deny converts a denied decision into the typed error the transport
// maps to a 429 with a whole-second Retry-After, rounded up.
func (d Decision) Deny() error {
	seconds := int64(math.Ceil(d.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return problem.RateLimited(time.Duration(seconds) * time.Second)
}
