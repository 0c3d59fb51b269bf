package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chatify/src/platform/problem"
)

// Domain policy for the fields a chat event is built from. Pure functions,
// no I/O; failures are typed InvalidArgument errors naming the offending
// field in its wire spelling.

const (
	maxOpaqueIDBytes = 256
	maxTextRunes     = 4096
)

func ValidateScopeID(scopeID string) error {
	if err := validateOpaqueID("scopeId", scopeID); err != nil {
		return err
	}
	// A colon would make the "type:id" partition key ambiguous.
	if strings.ContainsRune(scopeID, ':') {
		return problem.InvalidArgument("scopeId", "must not contain ':'")
	}
	return nil
}

func ValidateSenderID(senderID string) error {
	return validateOpaqueID("senderId", senderID)
}

func ValidateReplicaID(replicaID string) error {
	return validateOpaqueID("originPodId", replicaID)
}

func ValidateText(text string) error {
	if n := utf8.RuneCountInString(text); n > maxTextRunes {
		return problem.InvalidArgument("text",
			fmt.Sprintf("must be at most %d characters, got %d", maxTextRunes, n))
	}
	return nil
}

func ValidateScopeType(t ScopeType) error {
	if t != ScopeChannel && t != ScopeDirectMessage {
		return problem.InvalidArgument("scopeType",
			fmt.Sprintf("must be %d or %d, got %d", ScopeChannel, ScopeDirectMessage, t))
	}
	return nil
}

// ValidateEvent applies the whole policy to a decoded event. Used by the
// persister before anything reaches the history store.
func ValidateEvent(e *ChatEvent) error {
	if e == nil {
		return problem.InvalidArgument("event", "must not be null")
	}
	if err := ValidateScopeType(e.ScopeType); err != nil {
		return err
	}
	if err := ValidateScopeID(e.ScopeID); err != nil {
		return err
	}
	if err := ValidateSenderID(e.SenderID); err != nil {
		return err
	}
	if err := ValidateText(e.Text); err != nil {
		return err
	}
	if err := ValidateReplicaID(e.OriginReplicaID); err != nil {
		return err
	}
	return nil
}

func validateOpaqueID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return problem.InvalidArgument(field, "must not be blank")
	}
	if len(value) > maxOpaqueIDBytes {
		return problem.InvalidArgument(field,
			fmt.Sprintf("must be at most %d bytes, got %d", maxOpaqueIDBytes, len(value)))
	}
	return nil
}
