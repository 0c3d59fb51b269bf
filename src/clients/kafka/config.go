package kafka

import (
	"context"
	"crypto/tls"
	"math"
	"math/rand"
	"reflect"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"github.com/samber/oops"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/plugin/kzerolog"

	"chatify/src/platform/perr"
	"chatify/src/platform/validation"
	"chatify/src/util"
)

type GeneralConfig struct {
	ClientID               string        `validate:"required,min=3,max=64"`
	ServiceName            string        `validate:"required,min=3,max=64"`
	ServiceVersion         string        `validate:"required,min=1,max=30"`
	SeedBrokers            []string      `validate:"required,min=1,max=10,unique,host_port_list"`
	TLSConfig              *tls.Config   ``
	Username               string        `validate:"required_with=Password"`
	Password               string        `validate:"required_with=Username"`
	RequestTimeoutOverhead time.Duration `validate:"min=1000000000,max=15000000000" default:"5s"` // [1s, 15s]
}

type ProducerConfig struct {
	// Acks are all-ISR and the partitioner is keyed: both are the ordering
	// and durability contract for scope-keyed records, not tunables.
	BatchCompression      []kgo.CompressionCodec `` // defaults to Zstd, Lz4, Snappy, None
	BatchMaxBytes         int32                  `validate:"gte=1024,lte=10485760" default:"1048576"`
	MaxBufferedRecords    int                    `validate:"gte=100,lte=1000000" default:"10000"`
	RequestTimeout        time.Duration          `validate:"min=1000000000,max=30000000000" default:"5s"`
	RecordDeliveryTimeout time.Duration          `validate:"min=1000000000,lte=300000000000" default:"10s"`
	Linger                time.Duration          `validate:"gte=0,lte=10000000000"`
}

type ConsumerConfig struct {
	ConsumeTopics   []string      `validate:"required,min=1,unique"`
	FetchMaxWait    time.Duration `validate:"gte=10000000,lte=10000000000" default:"100ms"` // [10ms, 10s]
	FetchMinBytes   int32         `validate:"gte=1,lte=10485760" default:"1"`
	FetchMaxBytes   int32         `validate:"gte=1024,lte=104857600" default:"52428800"`
	StartAtEarliest bool          `default:"true"`
}

type ConsumerGroupConfig struct {
	GroupID           string        `validate:"required,min=1,max=100"`
	InstanceID        string        `validate:"omitempty,min=1,max=100"`
	SessionTimeout    time.Duration `validate:"gte=10000000000,lte=600000000000" default:"45s"`
	RebalanceTimeout  time.Duration `validate:"gte=10000000000,lte=60000000000" default:"60s"`
	HeartbeatInterval time.Duration `validate:"gte=1000000000,lte=15000000000" default:"3s"`
	DisableAutoCommit bool          ``
}

type ConfigurationLoggers struct {
	Client zerolog.Logger
	Driver zerolog.Logger
}

type ConfigurationBuilder struct {
	options  map[string]kgo.Opt
	required []string
	err      error
	logger   *ConfigurationLoggers
}

func NewConfigurationBuilder(loggers *ConfigurationLoggers) ConfigurationBuilder {
	return ConfigurationBuilder{
		options:  make(map[string]kgo.Opt),
		required: []string{"ClientID"},
		err:      nil,
		logger:   loggers,
	}
}

func (b *ConfigurationBuilder) SetGeneralConfig(config *GeneralConfig) bool {
	if !b.applyDefaultsAndValidate(&config) {
		return false
	}

	return b.setOption("ClientID", kgo.ClientID(config.ClientID)) &&
		b.setOption("DialTimeout", kgo.DialTimeout(5*time.Second)) &&
		((config.TLSConfig != nil && b.setOption("DialTLSConfig", kgo.DialTLSConfig(config.TLSConfig))) || true) &&
		b.setOption("RequestTimeoutOverhead", kgo.RequestTimeoutOverhead(config.RequestTimeoutOverhead)) &&
		b.setOption("ConnIdleTimeout", kgo.ConnIdleTimeout(10*time.Minute)) &&
		b.setOption("SoftwareNameAndVersion", kgo.SoftwareNameAndVersion(config.ServiceName, config.ServiceVersion)) &&
		b.setOption("WithLogger", kgo.WithLogger(kzerolog.New(&b.logger.Driver))) &&
		b.setOption("SeedBrokers", kgo.SeedBrokers(config.SeedBrokers...)) &&
		b.setOption("RetryBackoffFn", kgo.RetryBackoffFn(func(attempts int) time.Duration {
			// Start at 100ms and double up to a max of 5s, with jitter.
			baseDelay := 100 * time.Millisecond
			maxDelay := 5 * time.Second

			delay := min(time.Duration(baseDelay.Nanoseconds()*int64(math.Pow(2, float64(attempts)))), maxDelay)

			jitter := time.Duration(rand.Float64() * float64(delay.Nanoseconds()) * 0.4) //nolint:gosec // 40% range
			delay = delay - (delay / 5) + jitter

			return delay
		})) &&
		b.setOption("RetryTimeout", kgo.RetryTimeout(30*time.Second)) &&
		b.setOption("MetadataMaxAge", kgo.MetadataMaxAge(3*time.Minute)) &&
		b.setOption("MetadataMinAge", kgo.MetadataMinAge(7*time.Second)) &&
		((config.Username != "" && config.Password != "" && b.setOption("SASL", kgo.SASL(plain.Auth{
			User: config.Username,
			Pass: config.Password,
		}.AsMechanism()))) || true)
}

func (b *ConfigurationBuilder) SetProducerConfig(config *ProducerConfig) bool {
	if !b.applyDefaultsAndValidate(&config) {
		return false
	}

	if len(config.BatchCompression) == 0 {
		config.BatchCompression = append(config.BatchCompression,
			kgo.ZstdCompression(),
			kgo.Lz4Compression(),
			kgo.SnappyCompression(),
			kgo.NoCompression(),
		)
	}

	return b.setOption("RequiredAcks", kgo.RequiredAcks(kgo.AllISRAcks())) &&
		b.setOption("ProducerBatchCompression", kgo.ProducerBatchCompression(config.BatchCompression...)) &&
		b.setOption("ProducerBatchMaxBytes", kgo.ProducerBatchMaxBytes(config.BatchMaxBytes)) &&
		b.setOption("MaxBufferedRecords", kgo.MaxBufferedRecords(config.MaxBufferedRecords)) &&
		b.setOption("ProduceRequestTimeout", kgo.ProduceRequestTimeout(config.RequestTimeout)) &&
		b.setOption("RecordDeliveryTimeout", kgo.RecordDeliveryTimeout(config.RecordDeliveryTimeout)) &&
		// The caller owns retry policy; the producer itself fails fast.
		b.setOption("RecordRetries", kgo.RecordRetries(1)) &&
		((config.Linger > 0 && b.setOption("ProducerLinger", kgo.ProducerLinger(config.Linger))) || true) &&
		// Keyed partitioning binds every scope to exactly one partition.
		b.setOption("RecordPartitioner", kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil))) &&
		b.setOption("ProducerOnDataLossDetected", kgo.ProducerOnDataLossDetected(func(topic string, partition int32) {
			b.logger.Client.Error().Msgf("Kafka producer data loss detected on %s/%d", topic, partition)
		}))
}

func (b *ConfigurationBuilder) SetConsumerConfig(config *ConsumerConfig) bool {
	if !b.applyDefaultsAndValidate(&config) {
		return false
	}

	offset := kgo.NewOffset().AtEnd()
	if config.StartAtEarliest {
		offset = kgo.NewOffset().AtStart()
	}

	return b.setOption("ConsumeTopics", kgo.ConsumeTopics(config.ConsumeTopics...)) &&
		b.setOption("FetchMaxWait", kgo.FetchMaxWait(config.FetchMaxWait)) &&
		b.setOption("FetchMinBytes", kgo.FetchMinBytes(config.FetchMinBytes)) &&
		b.setOption("FetchMaxBytes", kgo.FetchMaxBytes(config.FetchMaxBytes)) &&
		b.setOption("ConsumeResetOffset", kgo.ConsumeResetOffset(offset))
}

func (b *ConfigurationBuilder) SetConsumerGroupConfig(config *ConsumerGroupConfig) bool {
	if !b.applyDefaultsAndValidate(&config) {
		return false
	}

	// Offsets of processed records are already committed, one record at
	// a time; committing the polled position here would skip records the
	// loop has not reached yet. The new owner resumes from the last
	// per-record commit.
	onRevoked := func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
		b.logger.Client.Warn().Msgf("Partitions revoked: %v", revoked)
	}
	onAssigned := func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
		b.logger.Client.Info().Msgf("Partitions assigned: %v", assigned)
	}
	onLost := func(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
		b.logger.Client.Error().Msgf("Partitions lost due to unrecoverable group error: %v", lost)
	}

	return b.setOption("ConsumerGroup", kgo.ConsumerGroup(config.GroupID)) &&
		((config.InstanceID != "" && b.setOption("InstanceID", kgo.InstanceID(config.InstanceID))) || true) &&
		b.setOption("SessionTimeout", kgo.SessionTimeout(config.SessionTimeout)) &&
		b.setOption("RebalanceTimeout", kgo.RebalanceTimeout(config.RebalanceTimeout)) &&
		b.setOption("HeartbeatInterval", kgo.HeartbeatInterval(config.HeartbeatInterval)) &&
		b.setOption("OnPartitionsAssigned", kgo.OnPartitionsAssigned(onAssigned)) &&
		b.setOption("OnPartitionsRevoked", kgo.OnPartitionsRevoked(onRevoked)) &&
		b.setOption("OnPartitionsLost", kgo.OnPartitionsLost(onLost)) &&
		((config.DisableAutoCommit && b.setOption("DisableAutoCommit", kgo.DisableAutoCommit())) || true)
}

func (b *ConfigurationBuilder) applyDefaultsAndValidate(config any) bool {
	if b.err != nil {
		return false
	}

	valueOfConfig := reflect.ValueOf(config)
	if valueOfConfig.Kind() != reflect.Ptr || valueOfConfig.IsNil() {
		b.err = oops.
			In(util.GetFunctionName()).
			Code(perr.EINVAL).
			Errorf("configuration must be a non-nil pointer: given %s", valueOfConfig.Kind().String())
		return false
	}

	if err := defaults.Set(config); err != nil {
		b.err = oops.
			In(util.GetFunctionName()).
			Code(perr.ECONFIG).
			Wrapf(err, "failed to set defaults for %s", valueOfConfig.Elem().Type().Name())
		return false
	}

	if err := validation.Instance.Struct(config); err != nil {
		b.err = oops.
			In(util.GetFunctionName()).
			Code(perr.ECONFIG).
			Wrapf(err, "failed to validate %s", valueOfConfig.Elem().Type().Name())
		return false
	}

	return true
}

func (b *ConfigurationBuilder) setOption(key string, opt kgo.Opt) bool {
	if _, exists := b.options[key]; exists {
		b.err = oops.
			In(util.GetFunctionName()).
			Code(perr.ECONFIG).
			Errorf("option with key %s already exists", key)
		return false
	}
	b.options[key] = opt
	return true
}

func (b *ConfigurationBuilder) getOptions() ([]kgo.Opt, error) {
	if b.err != nil {
		return nil, b.err
	}

	for _, reqKey := range b.required {
		if _, exists := b.options[reqKey]; !exists {
			b.err = oops.
				In(util.GetFunctionName()).
				Code(perr.ENOENT).
				Hint("Ensure all required configuration options are set before retrieving options").
				Errorf("missing required configuration option '%s'", reqKey)
			return nil, b.err
		}
	}

	opts := make([]kgo.Opt, 0, len(b.options))
	for _, opt := range b.options {
		opts = append(opts, opt)
	}
	return opts, nil
}
