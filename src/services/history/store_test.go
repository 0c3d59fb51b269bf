package history

import (
	"context"
	"errors"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"

	"chatify/src/domain"
	"chatify/src/platform/problem"
)

type fakeRequestError struct {
	code int
}

func (f fakeRequestError) Code() int       { return f.code }
func (f fakeRequestError) Message() string { return "fake" }
func (f fakeRequestError) Error() string   { return "fake request error" }

func TestClassifyTransientErrors(t *testing.T) {
	transient := []error{
		context.DeadlineExceeded,
		gocql.ErrTimeoutNoResponse,
		gocql.ErrNoConnections,
		gocql.ErrConnectionClosed,
		fakeRequestError{code: gocql.ErrCodeUnavailable},
		fakeRequestError{code: gocql.ErrCodeOverloaded},
		fakeRequestError{code: gocql.ErrCodeBootstrapping},
		fakeRequestError{code: gocql.ErrCodeWriteTimeout},
		fakeRequestError{code: gocql.ErrCodeReadTimeout},
		errors.New("something unheard of"),
	}
	for _, err := range transient {
		classified := classify(err, "op failed")
		assert.Equal(t, problem.KindTransientStoreError, problem.KindOf(classified), "%v", err)
		assert.ErrorIs(t, classified, err)
	}
}

func TestClassifyPermanentErrors(t *testing.T) {
	permanent := []error{
		fakeRequestError{code: gocql.ErrCodeSyntax},
		fakeRequestError{code: gocql.ErrCodeInvalid},
		fakeRequestError{code: gocql.ErrCodeAlreadyExists},
		fakeRequestError{code: gocql.ErrCodeUnauthorized},
		fakeRequestError{code: gocql.ErrCodeConfig},
	}
	for _, err := range permanent {
		classified := classify(err, "op failed")
		assert.Equal(t, problem.KindPermanentStoreError, problem.KindOf(classified), "%v", err)
	}
}

func TestScopeKeySplitting(t *testing.T) {
	assert.Equal(t, domain.ScopeChannel, scopeTypeOf("0:general"))
	assert.Equal(t, domain.ScopeDirectMessage, scopeTypeOf("1:u1-u2"))
	assert.Equal(t, "general", scopeIDOf("0:general"))
	assert.Equal(t, "u1-u2", scopeIDOf("1:u1-u2"))
}

func TestTableMetadataMatchesPersistedContract(t *testing.T) {
	assert.Equal(t, "chat_messages", chatMessagesMetadata.Name)
	assert.Equal(t, []string{"scope_id"}, chatMessagesMetadata.PartKey)
	assert.Equal(t, []string{"created_at_utc", "message_id"}, chatMessagesMetadata.SortKey)
}
