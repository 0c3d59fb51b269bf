package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/scylladb/gocqlx/v3"
	"github.com/scylladb/gocqlx/v3/qb"
	"github.com/scylladb/gocqlx/v3/table"

	"chatify/src/clients/scylla"
	"chatify/src/domain"
	"chatify/src/platform/problem"
)

var chatMessagesMetadata = table.Metadata{
	Name: "chat_messages",
	Columns: []string{
		"scope_id",
		"created_at_utc",
		"message_id",
		"sender_id",
		"text",
		"origin_replica_id",
		"broker_partition",
		"broker_offset",
	},
	PartKey: []string{"scope_id"},
	SortKey: []string{"created_at_utc", "message_id"},
}

var chatMessagesTable = table.New(chatMessagesMetadata)

type row struct {
	ScopeID         string    `db:"scope_id"`
	CreatedAtUTC    time.Time `db:"created_at_utc"`
	MessageID       string    `db:"message_id"`
	SenderID        string    `db:"sender_id"`
	Text            string    `db:"text"`
	OriginReplicaID string    `db:"origin_replica_id"`
	BrokerPartition int32     `db:"broker_partition"`
	BrokerOffset    int64     `db:"broker_offset"`
}

// Store is the append-only conversation history. The partition key is
// the serialized scope, the clustering key is (created_at_utc ASC,
// message_id ASC), so a scope reads back in total order and a re-insert
// of the same clustering tuple overwrites identical data, which makes
// Append idempotent under redelivery.
type Store struct {
	scylla *scylla.Client
	logger zerolog.Logger
}

func NewStore(client *scylla.Client, logger zerolog.Logger) *Store {
	return &Store{scylla: client, logger: logger}
}

// Append persists one enriched event. Failures are classified so the
// caller can decide between retry and poison-skip.
func (s *Store) Append(ctx context.Context, event *domain.EnrichedEvent) error {
	stmt, names := chatMessagesTable.Insert()

	err := s.session().Query(stmt, names).WithContext(ctx).BindStruct(row{
		ScopeID:         event.ScopeKey(),
		CreatedAtUTC:    event.CreatedAtUTC,
		MessageID:       event.MessageID.String(),
		SenderID:        event.SenderID,
		Text:            event.Text,
		OriginReplicaID: event.OriginReplicaID,
		BrokerPartition: event.Partition,
		BrokerOffset:    event.Offset,
	}).ExecRelease()
	if err != nil {
		return classify(err, fmt.Sprintf("append of message '%s' to scope '%s' failed", event.MessageID, event.ScopeKey()))
	}

	return nil
}

// Fetch reads a window of a scope's history in ascending time order.
// Both bounds are optional; limit caps the page size.
func (s *Store) Fetch(ctx context.Context, scopeKey string, fromUTC, toUTC *time.Time, limit uint) ([]domain.EnrichedEvent, error) {
	builder := qb.Select(chatMessagesMetadata.Name).
		Columns(chatMessagesMetadata.Columns...).
		Where(qb.Eq("scope_id")).
		OrderBy("created_at_utc", qb.ASC).
		OrderBy("message_id", qb.ASC)

	bindings := qb.M{"scope_id": scopeKey}
	if fromUTC != nil {
		builder = builder.Where(qb.GtOrEqNamed("created_at_utc", "from_utc"))
		bindings["from_utc"] = fromUTC.UTC()
	}
	if toUTC != nil {
		builder = builder.Where(qb.LtOrEqNamed("created_at_utc", "to_utc"))
		bindings["to_utc"] = toUTC.UTC()
	}
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	stmt, names := builder.ToCql()

	var rows []row
	err := s.session().Query(stmt, names).WithContext(ctx).BindMap(bindings).SelectRelease(&rows)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("fetch of scope '%s' history failed", scopeKey))
	}

	events := make([]domain.EnrichedEvent, 0, len(rows))
	for _, r := range rows {
		messageID, err := uuid.Parse(r.MessageID)
		if err != nil {
			s.logger.Error().Msgf("scope '%s' holds a row with malformed message id '%s'", scopeKey, r.MessageID)
			continue
		}
		events = append(events, domain.EnrichedEvent{
			ChatEvent: domain.ChatEvent{
				MessageID:       messageID,
				ScopeType:       scopeTypeOf(r.ScopeID),
				ScopeID:         scopeIDOf(r.ScopeID),
				SenderID:        r.SenderID,
				Text:            r.Text,
				CreatedAtUTC:    r.CreatedAtUTC.UTC(),
				OriginReplicaID: r.OriginReplicaID,
			},
			Partition: r.BrokerPartition,
			Offset:    r.BrokerOffset,
		})
	}

	return events, nil
}

func (s *Store) session() gocqlx.Session {
	return gocqlx.NewSession(s.scylla.Driver)
}

// classify splits store failures into transient (worth retrying with
// backoff) and permanent (poison, skip forward).
func classify(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gocql.ErrTimeoutNoResponse) ||
		errors.Is(err, gocql.ErrNoConnections) ||
		errors.Is(err, gocql.ErrConnectionClosed) {
		return problem.Wrap(problem.KindTransientStoreError, message, err)
	}

	var requestErr gocql.RequestError
	if errors.As(err, &requestErr) {
		switch requestErr.Code() {
		case gocql.ErrCodeUnavailable,
			gocql.ErrCodeOverloaded,
			gocql.ErrCodeBootstrapping,
			gocql.ErrCodeWriteTimeout,
			gocql.ErrCodeReadTimeout,
			gocql.ErrCodeServer:
			return problem.Wrap(problem.KindTransientStoreError, message, err)
		case gocql.ErrCodeSyntax,
			gocql.ErrCodeInvalid,
			gocql.ErrCodeAlreadyExists,
			gocql.ErrCodeUnauthorized,
			gocql.ErrCodeConfig:
			return problem.Wrap(problem.KindPermanentStoreError, message, err)
		}
	}

	// Unknown failures retry: wrongly skipping a good record loses data,
	// wrongly retrying a bad one only costs time.
	return problem.Wrap(problem.KindTransientStoreError, message, err)
}

func scopeTypeOf(scopeKey string) domain.ScopeType {
	if len(scopeKey) > 0 && scopeKey[0] == '1' {
		return domain.ScopeDirectMessage
	}
	return domain.ScopeChannel
}

func scopeIDOf(scopeKey string) string {
	for i := 0; i < len(scopeKey); i++ {
		if scopeKey[i] == ':' {
			return scopeKey[i+1:]
		}
	}
	return scopeKey
}
