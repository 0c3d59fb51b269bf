package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"chatify/src/clients/kafka"
	"chatify/src/domain"
	"chatify/src/platform/problem"
	"chatify/src/platform/validation"
)

// Service appends chat events to the log. One record per call, keyed by
// the scope so every event of a scope lands on the same partition, in
// call order. The broker must acknowledge the durable write before
// Produce returns; there is no retry at this layer, the caller decides.
type Service struct {
	kafka          *kafka.Client
	topic          string
	produceTimeout time.Duration
	logger         zerolog.Logger
}

type Options struct {
	KafkaClient    *kafka.Client `validate:"required"`
	Topic          string        `validate:"required,min=1,max=249"`
	ProduceTimeout time.Duration `validate:"gte=1000000000,lte=60000000000"` // 1s to 1m
	Logger         zerolog.Logger
}

func NewService(opts *Options) (*Service, error) {
	if err := validation.Instance.Struct(opts); err != nil {
		return nil, fmt.Errorf("can't create producer service: invalid options: %w", err)
	}

	return &Service{
		kafka:          opts.KafkaClient,
		topic:          opts.Topic,
		produceTimeout: opts.ProduceTimeout,
		logger:         opts.Logger,
	}, nil
}

// Produce appends the event and returns its durable position. Any
// failure, including timeout, surfaces as EventProductionFailed.
func (s *Service) Produce(ctx context.Context, event *domain.ChatEvent) (partition int32, offset int64, err error) {
	payload, err := domain.EncodeEvent(event)
	if err != nil {
		return 0, 0, problem.Wrap(problem.KindEventProductionFailed, "event could not be serialized", err)
	}

	produceCtx, cancel := context.WithTimeout(ctx, s.produceTimeout)
	defer cancel()

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.ScopeKey()),
		Value: payload,
	}

	results := s.kafka.Driver.ProduceSync(produceCtx, record)
	if err := results.FirstErr(); err != nil {
		s.logger.Error().Err(err).Msgf("produce of message '%s' for scope '%s' failed", event.MessageID, event.ScopeKey())
		return 0, 0, problem.Wrap(problem.KindEventProductionFailed,
			fmt.Sprintf("event '%s' was not acknowledged by the log", event.MessageID), err)
	}

	produced := results[0].Record
	return produced.Partition, produced.Offset, nil
}
