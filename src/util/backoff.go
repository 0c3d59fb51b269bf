package util

import (
	"math/rand/v2"
	"time"
)

// Backoff produces bounded, jittered exponential delays: attempt N yields
// min(initial*2^(N-1), max) plus a uniform jitter in [0, jitterMax).
// An instance belongs to a single loop; it is not safe for concurrent use.
type Backoff struct {
	initial   time.Duration
	max       time.Duration
	jitterMax time.Duration
	attempt   int
}

func NewBackoff(initial, max, jitterMax time.Duration) *Backoff {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial:   initial,
		max:       max,
		jitterMax: jitterMax,
		attempt:   1,
	}
}

// Next returns the delay for the current attempt and advances the attempt
// counter.
func (b *Backoff) Next() time.Duration {
	delay := b.initial << (b.attempt - 1)
	// Shifting past ~63 bits wraps; treat any overflowed value as capped.
	if delay <= 0 || delay > b.max || b.attempt > 62 {
		delay = b.max
	}
	b.attempt++

	if b.jitterMax > 0 {
		delay += time.Duration(rand.Int64N(int64(b.jitterMax)))
	}
	return delay
}

// Reset rewinds the generator to the first attempt.
func (b *Backoff) Reset() {
	b.attempt = 1
}

// Attempt reports the attempt Next would compute a delay for.
func (b *Backoff) Attempt() int {
	return b.attempt
}
