package state

import (
	"fmt"

	"chatify/src/clients/kafka"
	"chatify/src/clients/nats"
	"chatify/src/clients/redis"
	"chatify/src/clients/scylla"
	"chatify/src/platform/config"
	"chatify/src/platform/logging"
)

type KafkaClients struct {
	Admin     *kafka.Client
	Producer  *kafka.Client
	Broadcast *kafka.Client
	Persister *kafka.Client
}

type StorageClients struct {
	Redis       *redis.Client
	ScyllaDB    *scylla.Client
	ScyllaAdmin *scylla.Client
	Nats        *nats.Client
	Kafka       KafkaClients
}

// CreateClients builds every external connection handle from config.
// Nothing connects here; the lifecycle controller starts the shared
// clients, and each consumer loop starts the client it owns.
func CreateClients(cfg *config.Config, replicaID string, loggerFactory *logging.LoggerFactory) (*StorageClients, error) {
	redisClient, err := redis.NewClient(redis.ClientOptions{
		ConnectionString: string(cfg.Cache.ConnectionString),
		ClientName:       cfg.Application.InstanceName,
		Logger:           loggerFactory.Child("client.redis"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	scyllaClient := scylla.NewClient(scylla.ClientOptions{
		Hosts:          cfg.Store.ContactPoints,
		ShardAwarePort: cfg.Store.Port,
		LocalDC:        cfg.Store.LocalDC,
		Keyspace:       cfg.Store.Keyspace,
		Username:       cfg.Store.Username,
		Password:       string(cfg.Store.Password),
		Logger: scylla.ClientLoggerOptions{
			Client: loggerFactory.Child("client.scylla"),
			Driver: loggerFactory.Child("client.scylla.driver"),
		},
	})

	// Sessions bound to a keyspace cannot create it. The migration
	// runner gets a keyspace-free session of its own.
	scyllaAdminClient := scylla.NewClient(scylla.ClientOptions{
		Hosts:          cfg.Store.ContactPoints,
		ShardAwarePort: cfg.Store.Port,
		LocalDC:        cfg.Store.LocalDC,
		Keyspace:       "",
		Username:       cfg.Store.Username,
		Password:       string(cfg.Store.Password),
		Logger: scylla.ClientLoggerOptions{
			Client: loggerFactory.Child("client.scylla.admin"),
			Driver: loggerFactory.Child("client.scylla.admin.driver"),
		},
	})

	natsClient := nats.NewClient(&nats.ClientOptions{
		Servers:    cfg.Presence.NatsServers,
		ClientName: cfg.Application.InstanceName,
		Username:   cfg.Presence.Username,
		Password:   string(cfg.Presence.Password),
		Logger:     loggerFactory.Child("client.nats"),
	})

	kafkaClients, err := createKafkaClients(cfg, replicaID, loggerFactory)
	if err != nil {
		return nil, err
	}

	return &StorageClients{
		Redis:       redisClient,
		ScyllaDB:    scyllaClient,
		ScyllaAdmin: scyllaAdminClient,
		Nats:        natsClient,
		Kafka:       *kafkaClients,
	}, nil
}

func createKafkaClients(cfg *config.Config, replicaID string, loggerFactory *logging.LoggerFactory) (*KafkaClients, error) {
	general := func(role string) *kafka.GeneralConfig {
		return &kafka.GeneralConfig{
			ClientID:       fmt.Sprintf("kgo-%s-%s", cfg.Application.Name, role),
			ServiceName:    cfg.Application.InstanceName,
			ServiceVersion: cfg.Application.Version,
			SeedBrokers:    cfg.Log.BootstrapServers,
			Username:       cfg.Log.Username,
			Password:       string(cfg.Log.Password),
		}
	}
	loggers := func(role string) *kafka.ConfigurationLoggers {
		return &kafka.ConfigurationLoggers{
			Client: loggerFactory.Child("client.kafka." + role),
			Driver: loggerFactory.Child("client.kafka." + role + ".driver"),
		}
	}

	var adminClient, producerClient, broadcastClient, persisterClient *kafka.Client

	{
		builder := kafka.NewConfigurationBuilder(loggers("admin"))
		builder.SetGeneralConfig(general("admin"))

		client, err := kafka.NewClient(builder)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
		}
		adminClient = client
	}
	{
		builder := kafka.NewConfigurationBuilder(loggers("producer"))
		builder.SetGeneralConfig(general("producer"))
		builder.SetProducerConfig(&kafka.ProducerConfig{})

		client, err := kafka.NewClient(builder)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer client: %w", err)
		}
		producerClient = client
	}
	{
		// Group id unique per replica: this replica is the only member,
		// so it observes every partition.
		builder := kafka.NewConfigurationBuilder(loggers("broadcast"))
		builder.SetGeneralConfig(general("broadcast"))
		builder.SetConsumerConfig(&kafka.ConsumerConfig{
			ConsumeTopics: []string{cfg.Log.TopicName},
		})
		builder.SetConsumerGroupConfig(&kafka.ConsumerGroupConfig{
			GroupID:           fmt.Sprintf("%s-%s", cfg.Log.BroadcastGroupPrefix, replicaID),
			DisableAutoCommit: true,
		})

		client, err := kafka.NewClient(builder)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka broadcast client: %w", err)
		}
		broadcastClient = client
	}
	{
		builder := kafka.NewConfigurationBuilder(loggers("persister"))
		builder.SetGeneralConfig(general("persister"))
		builder.SetConsumerConfig(&kafka.ConsumerConfig{
			ConsumeTopics: []string{cfg.Log.TopicName},
		})
		builder.SetConsumerGroupConfig(&kafka.ConsumerGroupConfig{
			GroupID:           cfg.Persister.SharedGroupID,
			InstanceID:        cfg.Application.InstanceName,
			DisableAutoCommit: true,
		})

		client, err := kafka.NewClient(builder)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka persister client: %w", err)
		}
		persisterClient = client
	}

	return &KafkaClients{
		Admin:     adminClient,
		Producer:  producerClient,
		Broadcast: broadcastClient,
		Persister: persisterClient,
	}, nil
}
