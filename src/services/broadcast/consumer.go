package broadcast

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
	"chatify/src/platform/validation"
	"chatify/src/util"
)

// EventDeliverer fans one event out to the replica's local subscribers.
type EventDeliverer interface {
	Deliver(scopeID string, event *domain.ChatEvent) int
}

// offsetCommitter is the slice of the client the batch path touches.
type offsetCommitter interface {
	CommitRecords(ctx context.Context, records ...*kgo.Record) error
}

// Service is the per-replica fan-out consumer. Its group id is unique
// to this replica, so the replica is the sole group member and observes
// every partition and every event. Offsets are committed manually,
// exactly after a terminal outcome per record.
type Service struct {
	kafka     *kafka.Client
	committer offsetCommitter
	deliverer EventDeliverer

	backoffInitial time.Duration
	backoffMax     time.Duration
	maxPreview     int

	cancel context.CancelFunc
	done   sync.WaitGroup

	logger zerolog.Logger
}

type Options struct {
	KafkaClient       *kafka.Client  `validate:"required"`
	Deliverer         EventDeliverer `validate:"required"`
	BackoffInitial    time.Duration  `validate:"gte=10000000,lte=10000000000" default:"500ms"`
	BackoffMax        time.Duration  `validate:"gte=100000000,lte=300000000000" default:"15s"`
	MaxPayloadLogSize int            `validate:"gte=16,lte=4096" default:"256"`
	Logger            zerolog.Logger
}

func NewService(opts *Options) (*Service, error) {
	if err := applyDefaultsAndValidate(opts); err != nil {
		return nil, fmt.Errorf("can't create broadcast service: %w", err)
	}

	return &Service{
		kafka:          opts.KafkaClient,
		deliverer:      opts.Deliverer,
		backoffInitial: opts.BackoffInitial,
		backoffMax:     opts.BackoffMax,
		maxPreview:     opts.MaxPayloadLogSize,
		logger:         opts.Logger,
	}, nil
}

// Start connects the consumer and launches the poll loop. The loop owns
// the client handle for its whole life.
func (s *Service) Start(_ context.Context) error {
	if err := s.kafka.Start(context.Background()); err != nil {
		return fmt.Errorf("broadcast consumer failed to connect: %w", err)
	}
	s.committer = s.kafka.Driver

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		s.run(loopCtx)
	}()

	return nil
}

// Stop cancels the loop, waits for it to drain, then closes the client.
// Records interrupted mid batch stay uncommitted and redeliver on the
// next start.
func (s *Service) Stop(ctx context.Context) {
	if s.cancel == nil {
		s.logger.Warn().Msg("broadcast consumer already stopped")
		return
	}

	s.cancel()
	s.cancel = nil
	s.done.Wait()
	s.kafka.Stop(ctx)
}

func (s *Service) run(ctx context.Context) {
	backoff := util.NewBackoff(s.backoffInitial, s.backoffMax, s.backoffInitial/2)

	for {
		fetches := s.kafka.Driver.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			s.logger.Info().Msg("broadcast consumer loop exiting")
			return
		}

		if fetchErrs := fetches.Errors(); len(fetchErrs) > 0 {
			canceled := false
			for _, fetchErr := range fetchErrs {
				if errors.Is(fetchErr.Err, context.Canceled) {
					canceled = true
					continue
				}
				s.logger.Error().Err(fetchErr.Err).Msgf(
					"broadcast poll failed on %s/%d", fetchErr.Topic, fetchErr.Partition)
			}
			if canceled {
				s.logger.Info().Msg("broadcast consumer loop exiting")
				return
			}

			// Broker trouble. Back off without committing; the same
			// records come back on the next poll.
			sleep(ctx, backoff.Next())
			continue
		}

		s.processBatch(ctx, fetches)
		backoff.Reset()
	}
}

// processBatch delivers and commits every record in the fetch. A failed
// commit is logged and the batch keeps going: the consumed position is
// already past these records, so withholding delivery would strand them,
// and at-least-once redelivery covers the lost commit after a restart.
func (s *Service) processBatch(ctx context.Context, fetches kgo.Fetches) {
	fetches.EachRecord(func(record *kgo.Record) {
		if ctx.Err() != nil {
			return
		}

		s.handleRecord(record)

		if err := s.committer.CommitRecords(ctx, record); err != nil {
			s.logger.Error().Err(err).Msgf(
				"commit failed for %s/%d@%d", record.Topic, record.Partition, record.Offset)
		}
	})
}

// handleRecord decodes and fans out one record. Every outcome is
// terminal: malformed payloads are logged with a bounded preview and
// skipped so poison cannot stall the partition.
func (s *Service) handleRecord(record *kgo.Record) int {
	if len(record.Value) == 0 {
		s.logger.Warn().Msgf("skipping empty record at %s/%d@%d", record.Topic, record.Partition, record.Offset)
		return 0
	}

	event, err := domain.DecodeEvent(record.Value)
	if err != nil {
		s.logger.Error().Err(err).Msgf(
			"skipping malformed record at %s/%d@%d: %s",
			record.Topic, record.Partition, record.Offset, preview(record.Value, s.maxPreview))
		return 0
	}

	delivered := s.deliverer.Deliver(event.ScopeID, event)
	s.logger.Debug().Msgf(
		"message '%s' for scope '%s' delivered to %d local subscribers",
		event.MessageID, event.ScopeKey(), delivered)
	return delivered
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

func applyDefaultsAndValidate(opts *Options) error {
	if err := defaults.Set(opts); err != nil {
		return err
	}
	return validation.Instance.Struct(opts)
}
