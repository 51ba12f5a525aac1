// Package delivery implements the attempt ledger, the HTTP dispatcher, and
// the retry scheduling engine.
package delivery

import (
	"encoding/json"
	"time"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
)

// Status represents the current state of a delivery.
type Status string

const (
	// StatusPending indicates the delivery is awaiting its first attempt.
	StatusPending Status = "pending"

	// StatusRetrying indicates a failed attempt has been re-armed for retry.
	StatusRetrying Status = "retrying"

	// StatusSuccess indicates the endpoint acknowledged the delivery. Terminal.
	StatusSuccess Status = "success"

	// StatusFailed indicates the delivery exhausted its retry policy or
	// retry window. Terminal.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status admits no further attempts.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Delivery is one logical notification instance: one event occurrence
// delivered to one registration, tracked across possibly-multiple attempts.
// Deliveries are append-only history; they outlive their registration and
// are never deleted by this subsystem.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery.
	ID id.ID `json:"id"`

	// RegistrationID references the target registration.
	RegistrationID id.ID `json:"registration_id"`

	// EventID references the triggering event record.
	EventID id.ID `json:"event_id"`

	// EventType is the event type name.
	EventType string `json:"event_type"`

	// Payload is the body captured at trigger time. Retries reuse it verbatim.
	Payload json.RawMessage `json:"payload"`

	// Status is the current delivery state.
	Status Status `json:"status"`

	// Attempts is the number of attempts made so far.
	Attempts int `json:"attempts"`

	// MaxAttempts, Backoff, and InitialDelay snapshot the registration's
	// retry policy at schedule time. Policy edits mid-flight do not affect
	// deliveries already scheduled.
	MaxAttempts  int                  `json:"max_attempts"`
	Backoff      registration.Backoff `json:"backoff"`
	InitialDelay time.Duration        `json:"initial_delay"`

	// LastAttemptAt is when the most recent attempt started.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// NextRetryAt is when the next attempt becomes due. Nil once terminal.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// ResponseCode is the HTTP status code from the most recent attempt.
	ResponseCode int `json:"response_code,omitempty"`

	// ResponseBody is the response body from the most recent attempt,
	// truncated to maxResponseBody.
	ResponseBody string `json:"response_body,omitempty"`

	// ErrorMessage records transport failures (DNS, connect, timeout) from
	// the most recent attempt.
	ErrorMessage string `json:"error_message,omitempty"`

	// LastLatencyMs is the latency in milliseconds of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// CompletedAt is when the delivery reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Eligible reports whether the delivery may be attempted again at the given
// time: non-terminal, attempts remaining, and a due NextRetryAt.
func (d *Delivery) Eligible(now time.Time) bool {
	if d.Status.Terminal() {
		return false
	}
	if d.Attempts >= d.MaxAttempts {
		return false
	}
	return d.NextRetryAt != nil && !d.NextRetryAt.After(now)
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}
