package chatclient

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultReconnectDelay is the fixed delay used when no policy is configured.
const DefaultReconnectDelay = 5 * time.Second

// Backoff decides how long to wait before reconnect attempt n (1-based).
// A zero delay means give up.
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// FixedBackoff waits the same delay before every attempt. MaxAttempts of zero
// retries forever.
type FixedBackoff struct {
	Delay       time.Duration
	MaxAttempts int
}

func (b FixedBackoff) NextDelay(attempt int) time.Duration {
	if b.MaxAttempts > 0 && attempt > b.MaxAttempts {
		return 0
	}
	if b.Delay <= 0 {
		return DefaultReconnectDelay
	}
	return b.Delay
}

// ExponentialBackoff grows the delay by Multiplier per attempt up to Max.
// Jitter is a fraction (0.2 = ±20%) applied after capping.
type ExponentialBackoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	Jitter      float64
	MaxAttempts int

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if b.MaxAttempts > 0 && attempt > b.MaxAttempts {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	initial := b.Initial
	if initial <= 0 {
		initial = time.Second
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}

	delay := float64(initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		rnd := b.Rand
		if rnd == nil {
			rnd = rand.Float64
		}
		delay += (rnd()*2 - 1) * b.Jitter * delay
	}

	if delay < float64(time.Millisecond) {
		delay = float64(time.Millisecond)
	}
	return time.Duration(delay)
}
