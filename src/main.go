package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.yaml.in/yaml/v3"

	"chatify/src/clients/kafka"
	"chatify/src/clients/nats"
	"chatify/src/clients/redis"
	"chatify/src/clients/scylla"
	"chatify/src/platform/config"
	"chatify/src/platform/health"
	"chatify/src/platform/lifecycle"
	"chatify/src/platform/logging"
	"chatify/src/platform/state"
	"chatify/src/services/broadcast"
	"chatify/src/services/chat"
	"chatify/src/services/history"
	"chatify/src/services/migrations"
	"chatify/src/services/persister"
	"chatify/src/services/presence"
	"chatify/src/services/producer"
	"chatify/src/services/ratelimit"
	"chatify/src/services/subscriptions"
	"chatify/src/services/topics"
)

func main() {
	cfg, err := config.Load(config.LoadOptions{
		YamlFilePaths: []string{"/app/config/config.yaml"},
		EnvVarPrefix:  "CHATIFY_",
	})
	if err != nil {
		panic(fmt.Sprintf("Error loading config: %+v", err))
	}

	loggerFactory, err := logging.NewFactory(logging.Options{
		AppInstanceID: cfg.Application.InstanceName,
		AppVersion:    cfg.Application.Version,
		RootLevel:     cfg.Logging.RootLevel,
		LiteralLevels: cfg.Logging.LiteralLevels,
		RegexLevels:   cfg.Logging.RegexLevels,
		PrettyPrint:   cfg.Logging.PrettyPrint,
	})
	if err != nil {
		panic(fmt.Sprintf("Error creating logger factory: %+v", err))
	}
	logger := loggerFactory.Child("main")

	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to marshal config")
	}
	logger.Info().Msgf("Using config:\n%s", string(cfgBytes))

	clients, err := state.CreateClients(cfg, cfg.Env.ReplicaID, loggerFactory)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create clients")
	}

	migrationRunner, err := migrations.NewRunner(&migrations.Options{
		ScyllaClient:      clients.ScyllaAdmin,
		Keyspace:          cfg.Store.Keyspace,
		ReplicationFactor: len(cfg.Store.ContactPoints),
		MigrationTable:    cfg.Schema.MigrationTable,
		FailFast:          cfg.Schema.FailFast,
		AppliedBy:         cfg.Env.ReplicaID,
		Logger:            loggerFactory.Child("service.migrations"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create migration runner")
	}

	topicsService, err := topics.NewService(&topics.Options{
		KafkaClient: clients.Kafka.Admin,
		Topic:       cfg.Log.TopicName,
		Partitions:  cfg.Log.Partitions,
		Logger:      loggerFactory.Child("service.topics"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create topics service")
	}

	// Shared connections plus the two one-shot startup tasks. The store
	// session waits for the schema; producers and consumers wait for the
	// topic.
	infraServices := map[string]lifecycle.ServiceLifecycle{
		"redis":         clients.Redis,
		"nats":          clients.Nats,
		"scylla":        clients.ScyllaDB,
		"kafkaproducer": clients.Kafka.Producer,
		"topics":        topicsService,
	}
	infraDependencies := map[string][]string{
		"kafkaproducer": {"topics"},
	}
	if cfg.Schema.ApplyOnStartup {
		infraServices["migrations"] = migrationRunner
		infraDependencies["scylla"] = []string{"migrations"}
	}

	infraController, err := lifecycle.NewController(lifecycle.ControllerOptions{
		Services:     infraServices,
		Dependencies: infraDependencies,
		Timeouts: lifecycle.ControllerTimeoutsOptions{
			StartupPerService: map[string]time.Duration{"migrations": 60 * time.Second},
		},
		Logger: loggerFactory.Child("lifecycle.infra"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create infra lifecycle controller")
	}
	if err := infraController.Start(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start infra lifecycle controller")
	}
	defer infraController.Stop(context.Background())

	services, err := createServices(cfg, clients, loggerFactory)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create services")
	}

	serviceController, err := lifecycle.NewController(lifecycle.ControllerOptions{
		Services: map[string]lifecycle.ServiceLifecycle{
			"presence":  services.Presence,
			"broadcast": services.Broadcast,
			"persister": services.Persister,
		},
		Logger: loggerFactory.Child("lifecycle.services"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create service lifecycle controller")
	}
	if err := serviceController.Start(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start service lifecycle controller")
	}
	defer serviceController.Stop(context.Background())

	healthController, err := health.NewController(&health.ControllerConfig{
		Dependencies: map[string]health.Pingable{
			redis.PingTargetName:  clients.Redis,
			scylla.PingTargetName: clients.ScyllaDB,
			nats.PingTargetName:   clients.Nats,
			kafka.PingTargetName:  clients.Kafka.Producer,
		},
		Logger: loggerFactory.Child("health.controller"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create health controller")
	}
	healthController.Start()
	defer healthController.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")
}

func createServices(cfg *config.Config, clients *state.StorageClients, loggerFactory *logging.LoggerFactory) (*state.Services, error) {
	presenceService := presence.NewService(
		clients.Redis,
		clients.Nats,
		cfg.Env.ReplicaID,
		loggerFactory.ChildPtr("service.presence"),
	)

	rateLimitService, err := ratelimit.NewService(&ratelimit.Options{
		RedisClient:    clients.Redis,
		LimitPerWindow: int64(cfg.RateLimit.LimitPerWindow),
		Window:         time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		Logger:         loggerFactory.Child("service.ratelimit"),
	})
	if err != nil {
		return nil, err
	}

	producerService, err := producer.NewService(&producer.Options{
		KafkaClient:    clients.Kafka.Producer,
		Topic:          cfg.Log.TopicName,
		ProduceTimeout: 10 * time.Second,
		Logger:         loggerFactory.Child("service.producer"),
	})
	if err != nil {
		return nil, err
	}

	chatService, err := chat.NewService(&chat.Options{
		RateLimiter:   rateLimitService,
		EventProducer: producerService,
		ReplicaID:     cfg.Env.ReplicaID,
		Logger:        loggerFactory.Child("service.chat"),
	})
	if err != nil {
		return nil, err
	}

	registry := subscriptions.NewRegistry(loggerFactory.Child("service.subscriptions"))

	broadcastService, err := broadcast.NewService(&broadcast.Options{
		KafkaClient:       clients.Kafka.Broadcast,
		Deliverer:         registry,
		BackoffInitial:    time.Duration(cfg.Persister.ConsumerBackoffInitialMs) * time.Millisecond,
		BackoffMax:        time.Duration(cfg.Persister.ConsumerBackoffMaxMs) * time.Millisecond,
		MaxPayloadLogSize: cfg.Persister.MaxPayloadLogBytes,
		Logger:            loggerFactory.Child("service.broadcast"),
	})
	if err != nil {
		return nil, err
	}

	historyStore := history.NewStore(clients.ScyllaDB, loggerFactory.Child("service.history"))

	persisterService, err := persister.NewService(&persister.Options{
		KafkaClient:       clients.Kafka.Persister,
		Store:             historyStore,
		RetryMaxAttempts:  cfg.Persister.RetryMaxAttempts,
		RetryBase:         time.Duration(cfg.Persister.RetryBaseMs) * time.Millisecond,
		RetryMax:          time.Duration(cfg.Persister.RetryMaxMs) * time.Millisecond,
		BackoffInitial:    time.Duration(cfg.Persister.ConsumerBackoffInitialMs) * time.Millisecond,
		BackoffMax:        time.Duration(cfg.Persister.ConsumerBackoffMaxMs) * time.Millisecond,
		MaxPayloadLogSize: cfg.Persister.MaxPayloadLogBytes,
		Logger:            loggerFactory.Child("service.persister"),
	})
	if err != nil {
		return nil, err
	}

	return &state.Services{
		Presence:      presenceService,
		RateLimit:     rateLimitService,
		Producer:      producerService,
		Chat:          chatService,
		Subscriptions: registry,
		Broadcast:     broadcastService,
		Persister:     persisterService,
		History:       historyStore,
	}, nil
}
