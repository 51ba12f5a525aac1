package registration

import "time"

// Input is the creation payload for registrations.
type Input struct {
	// OwnerID identifies the tenant/user that owns this registration.
	OwnerID string `json:"owner_id"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description.
	Description string `json:"description,omitempty"`

	// Events are the event type subscriptions. At least one required.
	Events []string `json:"events"`

	// Headers are custom HTTP headers sent with each delivery attempt.
	Headers map[string]string `json:"headers,omitempty"`

	// RetryPolicy overrides the service defaults when set.
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`

	// Timeout overrides the default per-attempt budget when positive.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Update is the partial-update payload. Nil fields are left unchanged.
// The signing secret is deliberately absent: it is never updatable.
type Update struct {
	URL         *string           `json:"url,omitempty"`
	Description *string           `json:"description,omitempty"`
	Events      []string          `json:"events,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Active      *bool             `json:"active,omitempty"`
	RetryPolicy *RetryPolicy      `json:"retry_policy,omitempty"`
	Timeout     *time.Duration    `json:"timeout,omitempty"`
	RateLimit   *int              `json:"rate_limit,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
