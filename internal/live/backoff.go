package live

import (
	"context"
	"math"
	"time"
)

// Backoff is a bounded exponential reconnect policy.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration `yaml:"base"`

	// Factor multiplies the delay after every failed attempt.
	Factor float64 `yaml:"factor"`

	// Max caps the delay.
	Max time.Duration `yaml:"max"`

	// MaxAttempts is the number of consecutive failed attempts after
	// which reconnecting stops.
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultBackoff returns 1s, 2s, 4s, 8s, 16s with a 30s cap.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Factor:      2,
		Max:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before retry number attempt, counting from zero.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.Base) * math.Pow(factor, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Exhausted reports whether failures consecutive failures use up the
// attempt budget. A non-positive MaxAttempts never exhausts.
func (b Backoff) Exhausted(failures int) bool {
	return b.MaxAttempts > 0 && failures >= b.MaxAttempts
}

// Wait sleeps for the delay of attempt or until ctx is done.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
