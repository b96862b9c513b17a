package exchange

import (
	"math"
	"math/rand"
	"time"
)

// Backoff yields successive reconnect delays, growing exponentially from
// Min toward Max with proportional jitter so a fleet of listeners does
// not reconnect in lockstep. Reset starts the progression over after a
// session that actually streamed.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64

	attempt int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Min:    500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next advances the progression and returns the delay before the next
// connection attempt.
func (b *Backoff) Next() time.Duration {
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := time.Duration(float64(min) * math.Pow(factor, float64(b.attempt)))
	if wait <= 0 || wait > max {
		wait = max
	}
	b.attempt++

	if b.Jitter <= 0 {
		return wait
	}
	jitter := math.Min(b.Jitter, 1)
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// Reset restarts the progression at Min.
func (b *Backoff) Reset() { b.attempt = 0 }

// Attempt reports how many delays the current progression has yielded.
func (b *Backoff) Attempt() int { return b.attempt }
