package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatify/src/domain"
	"chatify/src/platform/correlation"
	"chatify/src/platform/validation"
	"chatify/src/services/ratelimit"
)

// RateLimiter admits or denies one message per call.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, senderID string) (ratelimit.Decision, error)
}

// EventProducer appends one event to the log and reports its position.
type EventProducer interface {
	Produce(ctx context.Context, event *domain.ChatEvent) (partition int32, offset int64, err error)
}

// SendCommand is one client submission. Sender identity comes from the
// transport's auth context, never from the payload.
type SendCommand struct {
	ScopeType domain.ScopeType
	ScopeID   string
	SenderID  string
	Text      string
}

// Service runs the per-request pipeline: validate, admit, build,
// produce. Steps are sequential and short-circuit on the first typed
// error. The rate bucket may stay incremented when a later step fails.
type Service struct {
	limiter   RateLimiter
	producer  EventProducer
	replicaID string
	logger    zerolog.Logger
}

type Options struct {
	RateLimiter   RateLimiter   `validate:"required"`
	EventProducer EventProducer `validate:"required"`
	ReplicaID     string        `validate:"required,notblank,max=256"`
	Logger        zerolog.Logger
}

func NewService(opts *Options) (*Service, error) {
	if err := validation.Instance.Struct(opts); err != nil {
		return nil, fmt.Errorf("can't create chat service: invalid options: %w", err)
	}

	return &Service{
		limiter:   opts.RateLimiter,
		producer:  opts.EventProducer,
		replicaID: opts.ReplicaID,
		logger:    opts.Logger,
	}, nil
}

// Send processes one submission end to end and returns the enriched
// event the transport echoes back to the client.
func (s *Service) Send(ctx context.Context, cmd SendCommand) (*domain.EnrichedEvent, error) {
	if err := domain.ValidateScopeType(cmd.ScopeType); err != nil {
		return nil, err
	}
	if err := domain.ValidateScopeID(cmd.ScopeID); err != nil {
		return nil, err
	}
	if err := domain.ValidateSenderID(cmd.SenderID); err != nil {
		return nil, err
	}
	if err := domain.ValidateText(cmd.Text); err != nil {
		return nil, err
	}

	decision, err := s.limiter.CheckAndIncrement(ctx, cmd.SenderID)
	if err != nil {
		return nil, fmt.Errorf("admission check failed: %w", err)
	}
	if !decision.Allowed {
		return nil, decision.Deny()
	}

	event := domain.ChatEvent{
		MessageID:       uuid.New(),
		ScopeType:       cmd.ScopeType,
		ScopeID:         cmd.ScopeID,
		SenderID:        cmd.SenderID,
		Text:            cmd.Text,
		CreatedAtUTC:    correlation.NowUTC(),
		OriginReplicaID: s.replicaID,
	}

	partition, offset, err := s.producer.Produce(ctx, &event)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("correlation.id", correlation.FromContext(ctx)).
		Msgf("message '%s' accepted for scope '%s' at %d/%d", event.MessageID, event.ScopeKey(), partition, offset)

	return &domain.EnrichedEvent{ChatEvent: event, Partition: partition, Offset: offset}, nil
}
