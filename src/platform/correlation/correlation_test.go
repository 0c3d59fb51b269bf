package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithID(context.Background(), "req-123")
	assert.Equal(t, "req-123", FromContext(ctx))
}

func TestFromContextWithoutID(t *testing.T) {
	assert.Equal(t, "", FromContext(context.Background()))
}

func TestEnsureKeepsValidID(t *testing.T) {
	assert.Equal(t, "abc-DEF.123", Ensure("abc-DEF.123"))
}

func TestEnsureGeneratesForInvalid(t *testing.T) {
	for _, bad := range []string{"", "has space", "tab\there", string(make([]byte, 200))} {
		id := Ensure(bad)
		require.NotEqual(t, bad, id)
		_, err := uuid.Parse(id)
		assert.NoError(t, err, "generated id should be a uuid")
	}
}

func TestNowUTCIsUTC(t *testing.T) {
	now := NowUTC()
	_, offset := now.Zone()
	assert.Equal(t, 0, offset)
}
