package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() ChatEvent {
	return ChatEvent{
		MessageID:       uuid.MustParse("3e0c2a1f-7b54-4a8e-9c11-08f2b7d4e5a6"),
		ScopeType:       ScopeChannel,
		ScopeID:         "general",
		SenderID:        "u-1",
		Text:            "hi",
		CreatedAtUTC:    time.Date(2026, 8, 24, 10, 30, 0, 123456700, time.UTC),
		OriginReplicaID: "chatify-0",
	}
}

func TestScopeKeySerialization(t *testing.T) {
	assert.Equal(t, "0:general", ScopeKey(ScopeChannel, "general"))
	assert.Equal(t, "1:u1-u2", ScopeKey(ScopeDirectMessage, "u1-u2"))

	e := validEvent()
	assert.Equal(t, "0:general", e.ScopeKey())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := validEvent()

	payload, err := EncodeEvent(&e)
	require.NoError(t, err)

	decoded, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, e, *decoded)

	reencoded, err := EncodeEvent(decoded)
	require.NoError(t, err)
	assert.Equal(t, payload, reencoded, "round trip must be byte identical")
}

func TestWireFieldNames(t *testing.T) {
	e := validEvent()
	payload, err := EncodeEvent(&e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))

	for _, field := range []string{
		"messageId", "scopeType", "scopeId", "senderId", "text", "createdAtUtc", "originPodId",
	} {
		assert.Contains(t, raw, field)
	}
	assert.Len(t, raw, 7)

	assert.Equal(t, float64(0), raw["scopeType"])
	assert.Equal(t, "3e0c2a1f-7b54-4a8e-9c11-08f2b7d4e5a6", raw["messageId"])

	// RFC 3339 UTC with a Z suffix.
	ts, ok := raw["createdAtUtc"].(string)
	require.True(t, ok)
	assert.Regexp(t, `^2026-08-24T10:30:00\.\d+Z$`, ts)
}

func TestDecodeEventFailures(t *testing.T) {
	_, err := DecodeEvent(nil)
	assert.Error(t, err)

	_, err = DecodeEvent([]byte("{not json"))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"scopeType":"nope"}`))
	assert.Error(t, err)
}

func TestEnrichedEventEmbedsChatEvent(t *testing.T) {
	e := EnrichedEvent{ChatEvent: validEvent(), Partition: 2, Offset: 42}

	payload, err := json.Marshal(e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, float64(2), raw["partition"])
	assert.Equal(t, float64(42), raw["offset"])
	assert.Equal(t, "general", raw["scopeId"])
}
