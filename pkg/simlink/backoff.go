package simlink

import (
	"math/rand"
	"time"
)

// backoff computes exponential retry delays with jitter for the
// supervisor's discovery loop. Reset after a successful connection.
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	current    time.Duration
}

func newBackoff(initial, max time.Duration, multiplier, jitter float64) *backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &backoff{
		initial:    initial,
		max:        max,
		multiplier: multiplier,
		jitter:     jitter,
		current:    initial,
	}
}

// next returns the delay to wait before the next attempt and
// advances the sequence.
func (b *backoff) next() time.Duration {
	delay := b.current
	if b.jitter > 0 {
		delay += time.Duration(float64(delay) * b.jitter * rand.Float64())
	}

	grown := time.Duration(float64(b.current) * b.multiplier)
	if grown > b.max {
		grown = b.max
	}
	b.current = grown

	return delay
}

func (b *backoff) reset() {
	b.current = b.initial
}
