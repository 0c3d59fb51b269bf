package config

import (
	"chatify/src/util"
)

// LogConfig describes the partitioned event log (Kafka).
type LogConfig struct {
	BootstrapServers     []string    `koanf:"bootstrap_servers" validate:"required,min=1,max=10,unique,host_port_list"`
	TopicName            string      `koanf:"topic_name" default:"chat-events" validate:"required,min=1,max=249"`
	Partitions           int32       `koanf:"partitions" default:"3" validate:"gte=1,lte=512"`
	BroadcastGroupPrefix string      `koanf:"broadcast_group_prefix" default:"chatify-broadcast" validate:"required,min=1,max=100"`
	Username             string      `koanf:"username" validate:"omitempty,min=1,max=64"`
	Password             util.Secret `koanf:"password" validate:"required_with=Username"`
}

// CacheConfig describes the distributed cache holding presence and rate
// state (Redis). ConnectionString is a redis:// cluster URL.
type CacheConfig struct {
	ConnectionString util.Secret `koanf:"connection_string" validate:"required,min=1"`
}

// StoreConfig describes the conversation history store (ScyllaDB).
type StoreConfig struct {
	ContactPoints []string    `koanf:"contact_points" validate:"required,min=1,max=10,unique"`
	Port          uint16      `koanf:"port" default:"9042" validate:"required"`
	Keyspace      string      `koanf:"keyspace" default:"chatify" validate:"required,min=1,max=48"`
	LocalDC       string      `koanf:"local_dc" validate:"omitempty,min=3,max=64,alphanum"`
	Username      string      `koanf:"username" validate:"omitempty,min=1,max=64"`
	Password      util.Secret `koanf:"password" validate:"required_with=Username"`
}

// PersisterConfig tunes the shared-group history consumer.
type PersisterConfig struct {
	SharedGroupID            string `koanf:"shared_group_id" default:"chatify-persister" validate:"required,min=1,max=100"`
	RetryMaxAttempts         int    `koanf:"retry_max_attempts" default:"5" validate:"gte=1,lte=20"`
	RetryBaseMs              int    `koanf:"retry_base_ms" default:"100" validate:"gte=10,lte=10000"`
	RetryMaxMs               int    `koanf:"retry_max_ms" default:"5000" validate:"gte=100,lte=60000"`
	ConsumerBackoffInitialMs int    `koanf:"consumer_backoff_initial_ms" default:"500" validate:"gte=10,lte=10000"`
	ConsumerBackoffMaxMs     int    `koanf:"consumer_backoff_max_ms" default:"15000" validate:"gte=100,lte=300000"`
	MaxPayloadLogBytes       int    `koanf:"max_payload_log_bytes" default:"256" validate:"gte=16,lte=4096"`
}

// RateLimitConfig tunes per-sender admission control.
type RateLimitConfig struct {
	LimitPerWindow int `koanf:"limit_per_window" default:"25" validate:"gte=1,lte=100000"`
	WindowSeconds  int `koanf:"window_seconds" default:"5" validate:"gte=1,lte=3600"`
}

// SchemaConfig governs the one-shot migration runner.
type SchemaConfig struct {
	ApplyOnStartup bool   `koanf:"apply_on_startup" default:"true"`
	MigrationTable string `koanf:"migration_table" default:"schema_migrations" validate:"required,min=1,max=48"`
	FailFast       bool   `koanf:"fail_fast" default:"true"`
}

// EnvConfig carries the injected replica identity. The replica id is
// validated by the domain policy before anything is produced with it.
type EnvConfig struct {
	ReplicaID string `koanf:"replica_id" validate:"omitempty,notblank,max=256"`
}

// PresenceConfig describes the presence update fan-out (NATS).
type PresenceConfig struct {
	NatsServers []string    `koanf:"nats_servers" validate:"required,min=1,max=10,unique,host_port_list"`
	Username    string      `koanf:"username" validate:"omitempty,min=1,max=64"`
	Password    util.Secret `koanf:"password" validate:"required_with=Username"`
}

type LoggingConfig struct {
	RootLevel     string            `koanf:"root_level" default:"info" validate:"required,oneof=trace debug info warn error fatal panic disabled"`
	LiteralLevels map[string]string `koanf:"literal_levels" validate:"max=100,dive,keys,required,min=1,max=100,endkeys,required,oneof=trace debug info warn error fatal panic disabled"`
	RegexLevels   map[string]string `koanf:"regex_levels" validate:"max=100,dive,keys,required,min=1,max=100,endkeys,required,oneof=trace debug info warn error fatal panic disabled"`
	PrettyPrint   bool              `koanf:"pretty_print"`
}

type ApplicationConfig struct {
	DeveloperMode bool `koanf:"developer_mode"`
	Name          string
	InstanceName  string
	Version       string
}

type Config struct {
	Application ApplicationConfig `koanf:"application"`
	Log         LogConfig         `koanf:"log" validate:"required"`
	Cache       CacheConfig       `koanf:"cache" validate:"required"`
	Store       StoreConfig       `koanf:"store" validate:"required"`
	Persister   PersisterConfig   `koanf:"persister" validate:"required"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit" validate:"required"`
	Schema      SchemaConfig      `koanf:"schema" validate:"required"`
	Presence    PresenceConfig    `koanf:"presence" validate:"required"`
	Env         EnvConfig         `koanf:"env"`
	Logging     LoggingConfig     `koanf:"logging" validate:"required"`
}
