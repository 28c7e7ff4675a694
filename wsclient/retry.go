package wsclient

import (
	"math"
	"math/rand"
	"time"
)

// Retryer paces reconnection attempts after a lost connection.
type Retryer interface {
	// NextDelay returns the delay before retry attempt (0-based) and
	// whether to keep retrying.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset clears retry state after a successful connection.
	Reset()
}

// ExponentialBackoff implements exponential backoff with optional jitter.
type ExponentialBackoff struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay growth.
	MaxDelay time.Duration

	// Multiplier is the growth factor between attempts.
	Multiplier float64

	// MaxRetries bounds the attempts; 0 retries forever.
	MaxRetries int

	// JitterFactor spreads each delay by up to this fraction in either
	// direction, avoiding reconnect stampedes. 0 disables jitter.
	JitterFactor float64
}

// NewExponentialBackoff returns a retryer with production defaults: start
// at one second, double up to thirty, retry forever, jitter by 30%.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
}

func (r *ExponentialBackoff) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.JitterFactor > 0 {
		//nolint:gosec // jitter is not security sensitive
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

func (r *ExponentialBackoff) Reset() {}

// FixedDelay retries at a constant interval.
type FixedDelay struct {
	Delay time.Duration

	// MaxRetries bounds the attempts; 0 retries forever.
	MaxRetries int
}

func (r *FixedDelay) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}

func (r *FixedDelay) Reset() {}
