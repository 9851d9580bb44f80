package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines exponential backoff parameters.
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
// With Jitter set, up to 25% of the computed delay is added so that
// concurrent retries do not synchronize.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2
	}

	delay := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	if p.Jitter {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}
