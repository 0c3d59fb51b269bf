package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatify/src/platform/problem"
)

func requireInvalidField(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var typed *problem.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, problem.KindInvalidArgument, typed.Kind)
	assert.Equal(t, field, typed.Field)
}

func TestValidateScopeID(t *testing.T) {
	assert.NoError(t, ValidateScopeID("general"))
	assert.NoError(t, ValidateScopeID("x"))

	requireInvalidField(t, ValidateScopeID(""), "scopeId")
	requireInvalidField(t, ValidateScopeID("   "), "scopeId")
	requireInvalidField(t, ValidateScopeID("\t\n"), "scopeId")
	requireInvalidField(t, ValidateScopeID(strings.Repeat("a", 257)), "scopeId")
	requireInvalidField(t, ValidateScopeID("bad:scope"), "scopeId")

	assert.NoError(t, ValidateScopeID(strings.Repeat("a", 256)))
}

func TestValidateSenderID(t *testing.T) {
	assert.NoError(t, ValidateSenderID("u-1"))
	requireInvalidField(t, ValidateSenderID(" "), "senderId")
	requireInvalidField(t, ValidateSenderID(strings.Repeat("u", 300)), "senderId")
}

func TestValidateReplicaID(t *testing.T) {
	assert.NoError(t, ValidateReplicaID("chatify-7d9f"))
	requireInvalidField(t, ValidateReplicaID(""), "originPodId")
}

func TestValidateTextBoundaries(t *testing.T) {
	assert.NoError(t, ValidateText(""))
	assert.NoError(t, ValidateText(strings.Repeat("a", 4096)))
	requireInvalidField(t, ValidateText(strings.Repeat("a", 4097)), "text")

	// Length counts characters, not bytes.
	assert.NoError(t, ValidateText(strings.Repeat("é", 4096)))
	requireInvalidField(t, ValidateText(strings.Repeat("é", 4097)), "text")
}

func TestValidateScopeType(t *testing.T) {
	assert.NoError(t, ValidateScopeType(ScopeChannel))
	assert.NoError(t, ValidateScopeType(ScopeDirectMessage))
	requireInvalidField(t, ValidateScopeType(ScopeType(2)), "scopeType")
	requireInvalidField(t, ValidateScopeType(ScopeType(-1)), "scopeType")
}

func TestValidateEventChecksEveryField(t *testing.T) {
	valid := validEvent()
	assert.NoError(t, ValidateEvent(&valid))

	cases := []struct {
		field  string
		mutate func(e *ChatEvent)
	}{
		{"scopeType", func(e *ChatEvent) { e.ScopeType = 9 }},
		{"scopeId", func(e *ChatEvent) { e.ScopeID = "  " }},
		{"senderId", func(e *ChatEvent) { e.SenderID = "" }},
		{"text", func(e *ChatEvent) { e.Text = strings.Repeat("x", 5000) }},
		{"originPodId", func(e *ChatEvent) { e.OriginReplicaID = "" }},
	}
	for _, tc := range cases {
		e := validEvent()
		tc.mutate(&e)
		requireInvalidField(t, ValidateEvent(&e), tc.field)
	}

	requireInvalidField(t, ValidateEvent(nil), "event")
}
