package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesUntilMax(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 1*time.Second, 0)

	assert.Equal(t, 100*time.Millisecond, b.Next())
	assert.Equal(t, 200*time.Millisecond, b.Next())
	assert.Equal(t, 400*time.Millisecond, b.Next())
	assert.Equal(t, 800*time.Millisecond, b.Next())
	assert.Equal(t, 1*time.Second, b.Next())
	assert.Equal(t, 1*time.Second, b.Next())
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(50*time.Millisecond, 500*time.Millisecond, 0)

	_ = b.Next()
	_ = b.Next()
	require.Equal(t, 3, b.Attempt())

	b.Reset()
	require.Equal(t, 1, b.Attempt())
	assert.Equal(t, 50*time.Millisecond, b.Next())
}

func TestBackoffJitterStaysWithinBound(t *testing.T) {
	base := 100 * time.Millisecond
	jitter := 30 * time.Millisecond
	b := NewBackoff(base, 1*time.Second, jitter)

	for i := 0; i < 100; i++ {
		b.Reset()
		d := b.Next()
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+jitter)
	}
}

func TestBackoffNeverOverflows(t *testing.T) {
	b := NewBackoff(1*time.Second, 30*time.Second, 0)

	var last time.Duration
	for i := 0; i < 80; i++ {
		last = b.Next()
		require.Greater(t, last, time.Duration(0))
		require.LessOrEqual(t, last, 30*time.Second)
	}
	assert.Equal(t, 30*time.Second, last)
}
