package persister

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"chatify/src/clients/kafka"
	"chatify/src/domain"
	"chatify/src/platform/problem"
	"chatify/src/platform/validation"
	"chatify/src/util"
)

// HistoryAppender persists one enriched event.
type HistoryAppender interface {
	Append(ctx context.Context, event *domain.EnrichedEvent) error
}

// consumerDriver is the slice of the client the batch path touches.
type consumerDriver interface {
	CommitRecords(ctx context.Context, records ...*kgo.Record) error
	SetOffsets(offsets map[string]map[int32]kgo.EpochOffset)
}

// Service is the shared-group consumer that projects the log into the
// history store. All replicas join one group and split partitions.
//
// Failure handling is two-level. Per record: decode and validation
// failures are permanent, committed past and never retried; store
// failures are retried in place with a jittered backoff up to
// maxAttempts, and transient exhaustion rewinds the partition so the
// same record redelivers after an outer backoff. Anything the loop
// cannot attribute escapes to the process boundary.
type Service struct {
	kafka  *kafka.Client
	driver consumerDriver
	store  HistoryAppender

	maxAttempts  int
	retryBase    time.Duration
	retryMax     time.Duration
	outerInitial time.Duration
	outerMax     time.Duration
	maxPreview   int

	cancel context.CancelFunc
	done   sync.WaitGroup

	logger zerolog.Logger
}

type Options struct {
	KafkaClient       *kafka.Client   `validate:"required"`
	Store             HistoryAppender `validate:"required"`
	RetryMaxAttempts  int             `validate:"gte=1,lte=20" default:"5"`
	RetryBase         time.Duration   `validate:"gte=10000000,lte=10000000000" default:"100ms"`
	RetryMax          time.Duration   `validate:"gte=100000000,lte=60000000000" default:"5s"`
	BackoffInitial    time.Duration   `validate:"gte=10000000,lte=10000000000" default:"500ms"`
	BackoffMax        time.Duration   `validate:"gte=100000000,lte=300000000000" default:"15s"`
	MaxPayloadLogSize int             `validate:"gte=16,lte=4096" default:"256"`
	Logger            zerolog.Logger
}

func NewService(opts *Options) (*Service, error) {
	if err := defaults.Set(opts); err != nil {
		return nil, fmt.Errorf("can't create persister service: %w", err)
	}
	if err := validation.Instance.Struct(opts); err != nil {
		return nil, fmt.Errorf("can't create persister service: invalid options: %w", err)
	}

	return &Service{
		kafka:        opts.KafkaClient,
		store:        opts.Store,
		maxAttempts:  opts.RetryMaxAttempts,
		retryBase:    opts.RetryBase,
		retryMax:     opts.RetryMax,
		outerInitial: opts.BackoffInitial,
		outerMax:     opts.BackoffMax,
		maxPreview:   opts.MaxPayloadLogSize,
		logger:       opts.Logger,
	}, nil
}

func (s *Service) Start(_ context.Context) error {
	if err := s.kafka.Start(context.Background()); err != nil {
		return fmt.Errorf("persister consumer failed to connect: %w", err)
	}
	s.driver = s.kafka.Driver

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		if err := s.run(loopCtx); err != nil {
			// The orchestrator restarts the process; a half-alive
			// persister would silently stop projecting history.
			s.logger.Fatal().Err(err).Msg("persister consumer loop died")
		}
	}()

	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.cancel == nil {
		s.logger.Warn().Msg("persister consumer already stopped")
		return
	}

	s.cancel()
	s.cancel = nil
	s.done.Wait()
	s.kafka.Stop(ctx)
}

func (s *Service) run(ctx context.Context) error {
	innerBackoff := util.NewBackoff(s.retryBase, s.retryMax, s.retryBase/2)
	outerBackoff := util.NewBackoff(s.outerInitial, s.outerMax, s.outerInitial/2)

	for {
		fetches := s.kafka.Driver.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			s.logger.Info().Msg("persister consumer loop exiting")
			return nil
		}

		if fetchErrs := fetches.Errors(); len(fetchErrs) > 0 {
			for _, fetchErr := range fetchErrs {
				if errors.Is(fetchErr.Err, context.Canceled) {
					s.logger.Info().Msg("persister consumer loop exiting")
					return nil
				}
				s.logger.Error().Err(fetchErr.Err).Msgf(
					"persister poll failed on %s/%d", fetchErr.Topic, fetchErr.Partition)
			}
			sleep(ctx, outerBackoff.Next())
			continue
		}

		stalled := s.processBatch(ctx, fetches, innerBackoff)
		if ctx.Err() != nil {
			return nil
		}

		if stalled {
			sleep(ctx, outerBackoff.Next())
			continue
		}

		innerBackoff.Reset()
		outerBackoff.Reset()
	}
}

// processBatch drives every fetched partition independently. A record
// that exhausts its retries stalls only its own partition: the consumed
// position of that partition is rewound to the failing record and its
// remaining records are left for the next poll, while the other
// partitions keep committing forward. A lost commit is logged and the
// batch keeps going; Append is idempotent, so redelivery behind a lost
// commit is harmless.
func (s *Service) processBatch(ctx context.Context, fetches kgo.Fetches, backoff *util.Backoff) (stalled bool) {
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		for _, record := range p.Records {
			if ctx.Err() != nil {
				return
			}

			if !s.processRecord(ctx, record, backoff) {
				s.rewind(record)
				stalled = true
				return
			}

			if err := s.driver.CommitRecords(ctx, record); err != nil {
				s.logger.Error().Err(err).Msgf(
					"commit failed for %s/%d@%d", record.Topic, record.Partition, record.Offset)
			}
		}
	})

	return stalled
}

// processRecord drives one record to a terminal outcome. True means the
// offset may move past the record; false means the record must redeliver.
func (s *Service) processRecord(ctx context.Context, record *kgo.Record, backoff *util.Backoff) bool {
	event, err := domain.DecodeEvent(record.Value)
	if err != nil {
		s.logger.Error().Err(err).Msgf(
			"skipping malformed record at %s/%d@%d: %s",
			record.Topic, record.Partition, record.Offset, preview(record.Value, s.maxPreview))
		return true
	}

	if err := domain.ValidateEvent(event); err != nil {
		s.logger.Error().Err(err).Msgf(
			"skipping invalid record at %s/%d@%d", record.Topic, record.Partition, record.Offset)
		return true
	}

	enriched := &domain.EnrichedEvent{
		ChatEvent: *event,
		Partition: record.Partition,
		Offset:    record.Offset,
	}

	backoff.Reset()
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.store.Append(ctx, enriched)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		switch problem.KindOf(err) {
		case problem.KindPermanentStoreError:
			s.logger.Error().Err(err).Msgf(
				"skipping unpersistable record at %s/%d@%d", record.Topic, record.Partition, record.Offset)
			return true
		case problem.KindTransientStoreError, problem.KindTimeout:
			s.logger.Warn().Err(err).Msgf(
				"store append attempt %d/%d failed for %s/%d@%d",
				attempt, s.maxAttempts, record.Topic, record.Partition, record.Offset)
			if attempt < s.maxAttempts {
				sleep(ctx, backoff.Next())
			}
		default:
			s.logger.Error().Err(err).Msgf(
				"store append failed without classification for %s/%d@%d",
				record.Topic, record.Partition, record.Offset)
			return false
		}
	}

	return false
}

// rewind moves the consumed position of the record's partition back to
// the record itself so the next poll returns it again.
func (s *Service) rewind(record *kgo.Record) {
	s.driver.SetOffsets(map[string]map[int32]kgo.EpochOffset{
		record.Topic: {
			record.Partition: {
				Epoch:  record.LeaderEpoch,
				Offset: record.Offset,
			},
		},
	})
}

func preview(payload []byte, limit int) string {
	if len(payload) <= limit {
		return string(payload)
	}
	return string(payload[:limit]) + "..."
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
