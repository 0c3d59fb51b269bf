package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	nats2 "github.com/nats-io/nats.go"
	redis2 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatify/src/clients/nats"
	"chatify/src/clients/redis"
)

const (
	userKeyFormat       = "presence:{%s}"
	connectionKeyFormat = "conn:{%s}"
)
const (
	connectionTTL = 60 * time.Second
	// The user set outlives individual connections by a grace period so a
	// heartbeat that refreshes the connection key cannot observe a user set
	// that already expired.
	userSetTTL = 90 * time.Second
)
const (
	statusCacheTTL           = 5 * time.Second
	statusCacheCapacity      = 10_000
	statusCacheLoaderTimeout = 100 * time.Millisecond
)
const (
	natsSubjectPresenceUpdates = "user.presence.updates"
)

type Status uint8

const (
	StatusOffline Status = iota
	StatusOnline
)

var ErrCacheMiss = errors.New("cache miss")

// Service tracks which connections a user currently holds and which
// replica owns each connection. All writes go to Redis with TTLs, so a
// crashed replica leaks nothing past the TTL horizon.
//
// Connect and disconnect paths never fail the user action: every Redis
// or NATS failure is logged and swallowed.
type Service struct {
	redis            *redis.Client
	nats             *nats.Client
	natsSubscription *nats2.Subscription
	replicaID        string
	statusCache      *ttlcache.Cache[string, Status]
	logger           *zerolog.Logger
}

func NewService(redisClient *redis.Client, natsClient *nats.Client, replicaID string, logger *zerolog.Logger) *Service {
	return &Service{
		redis:     redisClient,
		nats:      natsClient,
		replicaID: replicaID,
		logger:    logger,
		statusCache: ttlcache.New[string, Status](
			ttlcache.WithCapacity[string, Status](statusCacheCapacity),
			ttlcache.WithTTL[string, Status](statusCacheTTL),
			ttlcache.WithLoader[string, Status](ttlcache.LoaderFunc[string, Status](
				func(cache *ttlcache.Cache[string, Status], userID string) *ttlcache.Item[string, Status] {
					ctx, cancel := context.WithTimeout(context.Background(), statusCacheLoaderTimeout)
					defer cancel()

					exists, err := redisClient.Driver.Exists(ctx, fmt.Sprintf(userKeyFormat, userID)).Result()
					if err != nil {
						logger.Err(err).Msgf("redis presence status check for user '%s' failed", userID)
						return nil
					}

					status := StatusOffline
					if exists == 1 {
						status = StatusOnline
					}
					return cache.Set(userID, status, ttlcache.DefaultTTL)
				},
			)),
			ttlcache.WithDisableTouchOnHit[string, Status](),
		),
	}
}

func (s *Service) Start(_ context.Context) error {
	go s.statusCache.Start()

	subscription, err := s.nats.Driver.Subscribe(natsSubjectPresenceUpdates, func(msg *nats2.Msg) {
		payload := string(msg.Data) // "USER_ID,STATUS"

		parts := strings.Split(payload, ",")
		if len(parts) != 2 {
			s.logger.Error().Msgf("invalid NATS presence message: %s", payload)
			return
		}

		statusValue, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			s.logger.Error().Msgf("invalid NATS presence message '%s', status must be an uint8 field", payload)
			return
		}

		s.statusCache.Set(parts[0], Status(statusValue), ttlcache.DefaultTTL)
	})
	if err != nil {
		s.statusCache.Stop()
		return fmt.Errorf("failed to subscribe for NATS '%s' subject: %w", natsSubjectPresenceUpdates, err)
	}
	subscription.SetClosedHandler(func(subj string) {
		s.logger.Info().Msgf("NATS subscription to subject '%s' closed", subj)
	})
	s.natsSubscription = subscription

	return nil
}

func (s *Service) Stop(_ context.Context) {
	if err := s.natsSubscription.Unsubscribe(); err != nil {
		s.logger.Err(err).Msgf("failed to unsubscribe from NATS subject '%s'", s.natsSubscription.Subject)
	}
	s.statusCache.Stop()
}

// SetOnline records the connection under the user's set and maps the
// connection to this replica.
func (s *Service) SetOnline(ctx context.Context, userID, connectionID string) {
	userKey := fmt.Sprintf(userKeyFormat, userID)
	connectionKey := fmt.Sprintf(connectionKeyFormat, connectionID)

	_, err := s.redis.Driver.TxPipelined(ctx, func(pipe redis2.Pipeliner) error {
		pipe.SAdd(ctx, userKey, connectionID)
		pipe.Expire(ctx, userKey, userSetTTL)

		pipe.Set(ctx, connectionKey, s.replicaID, connectionTTL)

		return nil
	})
	if err != nil {
		s.logger.Err(err).Msgf("set online for connection '%s' of user '%s' failed", connectionID, userID)
		return
	}

	s.statusCache.Set(userID, StatusOnline, ttlcache.DefaultTTL)
	s.publishUpdate(userID, StatusOnline)
}

// SetOffline removes the connection mapping; when it was the user's last
// connection the user key is deleted as well.
func (s *Service) SetOffline(ctx context.Context, userID, connectionID string) {
	userKey := fmt.Sprintf(userKeyFormat, userID)
	connectionKey := fmt.Sprintf(connectionKeyFormat, connectionID)

	for {
		err := s.redis.Driver.Watch(ctx, func(tx *redis2.Tx) error {
			connectionsBefore, err := tx.SCard(ctx, userKey).Result()
			if err != nil {
				return fmt.Errorf("failed to SCARD %s: %w", userKey, err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis2.Pipeliner) error {
				pipe.Del(ctx, connectionKey)
				pipe.SRem(ctx, userKey, connectionID)
				if connectionsBefore <= 1 {
					pipe.Del(ctx, userKey)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to transactionally remove connection '%s': %w", connectionID, err)
			}

			if connectionsBefore <= 1 {
				s.statusCache.Set(userID, StatusOffline, ttlcache.DefaultTTL)
				s.publishUpdate(userID, StatusOffline)
			}
			return nil
		}, userKey)

		if errors.Is(err, redis2.TxFailedErr) {
			continue
		}
		if err != nil {
			s.logger.Err(err).Msgf("set offline for connection '%s' of user '%s' failed", connectionID, userID)
		}
		return
	}
}

// Heartbeat refreshes both TTLs. A heartbeat against an expired
// connection silently re-arms nothing, which is fine: the next connect
// recreates the record.
func (s *Service) Heartbeat(ctx context.Context, userID, connectionID string) {
	userKey := fmt.Sprintf(userKeyFormat, userID)
	connectionKey := fmt.Sprintf(connectionKeyFormat, connectionID)

	pipe := s.redis.Driver.Pipeline()
	pipe.Expire(ctx, connectionKey, connectionTTL)
	pipe.Expire(ctx, userKey, userSetTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Err(err).Msgf("heartbeat for connection '%s' of user '%s' failed", connectionID, userID)
	}
}

// Status answers from the local cache, falling back to a bounded Redis
// lookup on miss.
func (s *Service) Status(userID string) (Status, error) {
	item := s.statusCache.Get(userID)
	if item == nil {
		return StatusOffline, fmt.Errorf("presence cache miss for user '%s': %w", userID, ErrCacheMiss)
	}
	return item.Value(), nil
}

// Connections lists the user's live connection ids.
func (s *Service) Connections(ctx context.Context, userID string) ([]string, error) {
	connections, err := s.redis.Driver.SMembers(ctx, fmt.Sprintf(userKeyFormat, userID)).Result()
	if err != nil {
		if errors.Is(err, redis2.Nil) {
			return make([]string, 0), nil
		}
		return nil, fmt.Errorf("list connections for user '%s' failed: %w", userID, err)
	}
	return connections, nil
}

// ConnectionReplica resolves which replica owns a connection. Returns
// ("", nil) when the connection is unknown or expired.
func (s *Service) ConnectionReplica(ctx context.Context, connectionID string) (string, error) {
	replicaID, err := s.redis.Driver.Get(ctx, fmt.Sprintf(connectionKeyFormat, connectionID)).Result()
	if err != nil {
		if errors.Is(err, redis2.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("resolve replica for connection '%s' failed: %w", connectionID, err)
	}
	return replicaID, nil
}

func (s *Service) publishUpdate(userID string, status Status) {
	msg := userID + "," + strconv.FormatUint(uint64(status), 10)
	if err := s.nats.Driver.Publish(natsSubjectPresenceUpdates, []byte(msg)); err != nil {
		s.logger.Err(err).Msgf("failed to publish presence update '%s' for user '%s'", status.String(), userID)
	}
}

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusOnline:
		return "online"
	default:
		return "unknown"
	}
}
