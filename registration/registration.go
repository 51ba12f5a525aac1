// Package registration manages webhook registrations: the configured
// destination endpoints, their event subscriptions, signing secrets,
// and per-endpoint retry policy.
package registration

import (
	"errors"
	"time"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
)

// ErrNotFound is returned when a registration cannot be found or belongs to
// a different owner. Store backends return exactly this value so callers can
// tell a deleted registration apart from a backend failure.
var ErrNotFound = errors.New("hookline: registration not found")

// Backoff selects the delay-growth strategy between retry attempts.
type Backoff string

const (
	// BackoffLinear grows the delay as initialDelay × attempts.
	BackoffLinear Backoff = "linear"

	// BackoffExponential doubles the delay after every failed attempt,
	// capped at the engine's maximum backoff.
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy controls how failed deliveries to a registration are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, first try included. Must be ≥ 1.
	MaxAttempts int `json:"max_attempts"`

	// Backoff is the delay-growth strategy.
	Backoff Backoff `json:"backoff"`

	// InitialDelay seeds the backoff computation.
	InitialDelay time.Duration `json:"initial_delay"`
}

// Valid reports whether the policy is well-formed.
func (p RetryPolicy) Valid() bool {
	if p.MaxAttempts < 1 {
		return false
	}
	if p.Backoff != BackoffLinear && p.Backoff != BackoffExponential {
		return false
	}
	return p.InitialDelay > 0
}

// Registration represents a webhook delivery target registered by an owner.
type Registration struct {
	entity.Entity

	// ID is the unique TypeID for this registration.
	ID id.ID `json:"id"`

	// OwnerID identifies the tenant/user that owns this registration.
	OwnerID string `json:"owner_id"`

	// URL is the webhook delivery URL. Must be an absolute HTTP(S) URI.
	URL string `json:"url"`

	// Description is a human-readable description of this registration.
	Description string `json:"description,omitempty"`

	// Secret is the HMAC signing secret. Set exactly once at creation,
	// returned only in the creation response, and never serialized.
	Secret string `json:"-"`

	// Events are the event type subscriptions. Patterns support a single
	// segment wildcard ("order.*"); plain names are exact matches.
	Events []string `json:"events"`

	// Headers are custom HTTP headers sent with each delivery attempt.
	Headers map[string]string `json:"headers,omitempty"`

	// Active indicates whether the registration participates in fan-out.
	// Inactive registrations keep their delivery history.
	Active bool `json:"active"`

	// RetryPolicy controls retries for failed deliveries. Deliveries
	// snapshot the policy when they are scheduled.
	RetryPolicy RetryPolicy `json:"retry_policy"`

	// Timeout is the per-attempt duration budget.
	Timeout time.Duration `json:"timeout"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Redacted returns a copy of the registration with the secret cleared.
// Every read path after creation goes through this.
func (r *Registration) Redacted() *Registration {
	cp := *r
	cp.Secret = ""
	return &cp
}

// Subscribes reports whether the registration is subscribed to the event type.
func (r *Registration) Subscribes(eventType string, match func(pattern, eventType string) bool) bool {
	for _, pattern := range r.Events {
		if match(pattern, eventType) {
			return true
		}
	}
	return false
}

// ListOpts configures filtering and pagination for registration listing.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
