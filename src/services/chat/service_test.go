package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatify/src/domain"
	"chatify/src/platform/problem"
	"chatify/src/services/ratelimit"
)

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
	calls    int
}

func (f *fakeLimiter) CheckAndIncrement(_ context.Context, _ string) (ratelimit.Decision, error) {
	f.calls++
	return f.decision, f.err
}

type fakeProducer struct {
	partition int32
	offset    int64
	err       error
	produced  []*domain.ChatEvent
}

func (f *fakeProducer) Produce(_ context.Context, event *domain.ChatEvent) (int32, int64, error) {
	f.produced = append(f.produced, event)
	return f.partition, f.offset, f.err
}

func newTestService(t *testing.T, limiter RateLimiter, producer EventProducer) *Service {
	t.Helper()
	svc, err := NewService(&Options{
		RateLimiter:   limiter,
		EventProducer: producer,
		ReplicaID:     "chatify-0",
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func validCommand() SendCommand {
	return SendCommand{
		ScopeType: domain.ScopeChannel,
		ScopeID:   "general",
		SenderID:  "u-1",
		Text:      "hello",
	}
}

func TestSendHappyPath(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	producer := &fakeProducer{partition: 2, offset: 41}
	svc := newTestService(t, limiter, producer)

	before := time.Now().UTC()
	enriched, err := svc.Send(context.Background(), validCommand())
	require.NoError(t, err)

	assert.Equal(t, int32(2), enriched.Partition)
	assert.Equal(t, int64(41), enriched.Offset)
	assert.Equal(t, "general", enriched.ScopeID)
	assert.Equal(t, "u-1", enriched.SenderID)
	assert.Equal(t, "chatify-0", enriched.OriginReplicaID)
	assert.NotEqual(t, uuid.Nil, enriched.MessageID)

	_, offset := enriched.CreatedAtUTC.Zone()
	assert.Equal(t, 0, offset, "timestamp must be UTC")
	assert.False(t, enriched.CreatedAtUTC.Before(before))

	require.Len(t, producer.produced, 1)
}

func TestSendValidationShortCircuits(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	producer := &fakeProducer{}
	svc := newTestService(t, limiter, producer)

	cases := []struct {
		name   string
		mutate func(c *SendCommand)
		field  string
	}{
		{"bad scope type", func(c *SendCommand) { c.ScopeType = 7 }, "scopeType"},
		{"blank scope", func(c *SendCommand) { c.ScopeID = "  " }, "scopeId"},
		{"colon scope", func(c *SendCommand) { c.ScopeID = "a:b" }, "scopeId"},
		{"blank sender", func(c *SendCommand) { c.SenderID = "" }, "senderId"},
		{"long text", func(c *SendCommand) { c.Text = strings.Repeat("x", 4097) }, "text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validCommand()
			tc.mutate(&cmd)

			_, err := svc.Send(context.Background(), cmd)
			var typed *problem.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, problem.KindInvalidArgument, typed.Kind)
			assert.Equal(t, tc.field, typed.Field)
		})
	}

	assert.Zero(t, limiter.calls, "validation failures must not touch the limiter")
	assert.Empty(t, producer.produced)
}

func TestSendDeniedByLimiter(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}}
	producer := &fakeProducer{}
	svc := newTestService(t, limiter, producer)

	_, err := svc.Send(context.Background(), validCommand())

	var typed *problem.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, problem.KindRateLimitExceeded, typed.Kind)
	assert.Equal(t, 2*time.Second, typed.RetryAfter, "retry after rounds up to whole seconds")
	assert.Empty(t, producer.produced, "denied submissions must not reach the log")
}

func TestSendProducerFailurePropagates(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	producer := &fakeProducer{err: problem.Wrap(problem.KindEventProductionFailed, "broker down", errors.New("eof"))}
	svc := newTestService(t, limiter, producer)

	_, err := svc.Send(context.Background(), validCommand())
	assert.Equal(t, problem.KindEventProductionFailed, problem.KindOf(err))
	assert.Equal(t, 1, limiter.calls, "the bucket stays incremented on produce failure")
}

func TestEmptyTextAllowed(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	producer := &fakeProducer{}
	svc := newTestService(t, limiter, producer)

	cmd := validCommand()
	cmd.Text = ""

	_, err := svc.Send(context.Background(), cmd)
	require.NoError(t, err)
}
