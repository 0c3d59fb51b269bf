package topics

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"

	"chatify/src/clients/kafka"
	"chatify/src/platform/validation"
)

// Service ensures the chat event topic exists before any producer or
// consumer touches it. It owns a short-lived admin connection: opened on
// Start, closed right after the topic is ensured.
type Service struct {
	kafka      *kafka.Client
	topic      string
	partitions int32
	logger     zerolog.Logger
}

type Options struct {
	KafkaClient *kafka.Client `validate:"required"`
	Topic       string        `validate:"required,min=1,max=249"`
	Partitions  int32         `validate:"gte=1,lte=512"`
	Logger      zerolog.Logger
}

func NewService(opts *Options) (*Service, error) {
	if err := validation.Instance.Struct(opts); err != nil {
		return nil, fmt.Errorf("can't create topics service: invalid options: %w", err)
	}

	return &Service{
		kafka:      opts.KafkaClient,
		topic:      opts.Topic,
		partitions: opts.Partitions,
		logger:     opts.Logger,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	if err := s.kafka.Start(ctx); err != nil {
		return fmt.Errorf("topics service failed to connect: %w", err)
	}
	defer s.kafka.Stop(ctx)

	admin := kadm.NewClient(s.kafka.Driver)

	// Replication factor -1 defers to the broker default.
	response, err := admin.CreateTopic(ctx, s.partitions, -1, nil, s.topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topic '%s': %w", s.topic, err)
	}
	if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topic '%s': %w", s.topic, response.Err)
	}

	if errors.Is(err, kerr.TopicAlreadyExists) || errors.Is(response.Err, kerr.TopicAlreadyExists) {
		s.logger.Info().Msgf("topic '%s' already exists", s.topic)
		return nil
	}

	s.logger.Info().Msgf("topic '%s' created with %d partitions", s.topic, s.partitions)
	return nil
}

func (s *Service) Stop(_ context.Context) {}
