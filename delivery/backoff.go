package delivery

import (
	"math/rand/v2"
	"time"

	"github.com/hookline/hookline/registration"
)

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the endpoint acknowledged with a 2xx.
	Delivered Decision = iota

	// Retry means the delivery should be re-armed for a later attempt.
	Retry

	// Exhausted means the retry policy or retry window ran out; the
	// delivery is terminally failed.
	Exhausted
)

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Response   string
	Error      string
	LatencyMs  int
}

// Succeeded reports whether the attempt got a 2xx response.
func (r Result) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Retrier decides what happens to a delivery after an attempt and computes
// backoff delays from the delivery's policy snapshot.
type Retrier struct {
	maxBackoff time.Duration
	window     time.Duration
}

// NewRetrier creates a retrier. maxBackoff caps exponential growth; window
// is the absolute retry cutoff measured from delivery creation.
func NewRetrier(maxBackoff, window time.Duration) *Retrier {
	return &Retrier{maxBackoff: maxBackoff, window: window}
}

// Expired reports whether the delivery's age exceeds the retry window.
func (r *Retrier) Expired(d *Delivery, now time.Time) bool {
	if r.window <= 0 {
		return false
	}
	return now.Sub(d.CreatedAt) >= r.window
}

// Decide determines what happens after an attempt. Any non-2xx outcome —
// transport errors included — is a failure; failures retry until the
// attempt budget or the retry window runs out.
func (r *Retrier) Decide(res Result, d *Delivery, now time.Time) Decision {
	if res.Succeeded() {
		return Delivered
	}
	if d.Attempts >= d.MaxAttempts || r.Expired(d, now) {
		return Exhausted
	}
	return Retry
}

// NextDelay computes the backoff before the next attempt from the
// delivery's policy snapshot and attempt count:
//
//	exponential: min(maxBackoff, initialDelay × 2^(attempts-1))
//	linear:      initialDelay × attempts
//
// plus a uniform jitter of up to 10% to avoid synchronized retry storms.
func (r *Retrier) NextDelay(d *Delivery) time.Duration {
	attempts := d.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var delay time.Duration
	switch d.Backoff {
	case registration.BackoffLinear:
		delay = d.InitialDelay * time.Duration(attempts)
	default: // exponential
		delay = d.InitialDelay << (attempts - 1)
		if delay <= 0 || delay > r.maxBackoff { // overflow guard + cap
			delay = r.maxBackoff
		}
	}

	if delay <= 0 {
		delay = d.InitialDelay
	}

	return delay + jitter(delay)
}

// jitter returns a uniform random duration in [0, d/10).
func jitter(d time.Duration) time.Duration {
	tenth := int64(d) / 10
	if tenth <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(tenth))
}
