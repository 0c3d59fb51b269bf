package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ScopeType addresses one of the two conversation bucket families.
// The wire representation is the raw integer.
type ScopeType int

const (
	ScopeChannel       ScopeType = 0
	ScopeDirectMessage ScopeType = 1
)

func (t ScopeType) String() string {
	switch t {
	case ScopeChannel:
		return "channel"
	case ScopeDirectMessage:
		return "direct_message"
	default:
		return "unknown"
	}
}

// ChatEvent is the atomic unit produced to and consumed from the log.
// Immutable once produced; consumers hold read-only copies.
//
// The JSON tags are the wire contract: canonical camelCase, UTF-8,
// timestamps as RFC 3339 with a Z suffix. OriginReplicaID travels as
// "originPodId".
type ChatEvent struct {
	MessageID       uuid.UUID `json:"messageId"`
	ScopeType       ScopeType `json:"scopeType"`
	ScopeID         string    `json:"scopeId"`
	SenderID        string    `json:"senderId"`
	Text            string    `json:"text"`
	CreatedAtUTC    time.Time `json:"createdAtUtc"`
	OriginReplicaID string    `json:"originPodId"`
}

// ScopeKey returns the deterministic partition key for the event's scope,
// serialized as "type:id". All events of one scope share one partition.
func (e *ChatEvent) ScopeKey() string {
	return ScopeKey(e.ScopeType, e.ScopeID)
}

func ScopeKey(t ScopeType, id string) string {
	return strconv.Itoa(int(t)) + ":" + id
}

// EnrichedEvent is a ChatEvent plus its durable position on the log,
// assigned by the producer after the broker acknowledged the write.
type EnrichedEvent struct {
	ChatEvent
	Partition int32 `json:"partition"`
	Offset    int64 `json:"offset"`
}

// EncodeEvent renders the canonical log payload: compact JSON, no BOM.
func EncodeEvent(e *ChatEvent) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat event '%s': %w", e.MessageID, err)
	}
	return payload, nil
}

// DecodeEvent parses a log payload back into a ChatEvent.
func DecodeEvent(payload []byte) (*ChatEvent, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty chat event payload")
	}

	var e ChatEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("malformed chat event payload: %w", err)
	}
	return &e, nil
}
