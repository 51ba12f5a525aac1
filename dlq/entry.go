package dlq

import (
	"encoding/json"
	"time"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
)

// Entry represents a permanently failed delivery in the dead letter queue.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// DeliveryID references the failed delivery.
	DeliveryID id.ID `json:"delivery_id"`

	// EventID references the original event.
	EventID id.ID `json:"event_id"`

	// RegistrationID references the target registration.
	RegistrationID id.ID `json:"registration_id"`

	// EventType is the event type name for filtering.
	EventType string `json:"event_type"`

	// OwnerID identifies the owner of the registration.
	OwnerID string `json:"owner_id"`

	// URL is the registration URL at the time of failure.
	URL string `json:"url"`

	// Payload is the body that failed to deliver.
	Payload json.RawMessage `json:"payload"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// ResponseCode is the HTTP status code from the final attempt.
	ResponseCode int `json:"response_code,omitempty"`

	// Attempts is the total number of attempts made.
	Attempts int `json:"attempts"`

	// MaxAttempts, Backoff, and InitialDelay carry the delivery's policy
	// snapshot so a replay keeps the schedule-time policy.
	MaxAttempts  int                  `json:"max_attempts"`
	Backoff      registration.Backoff `json:"backoff"`
	InitialDelay time.Duration        `json:"initial_delay"`

	// ReplayedAt is set when the entry has been replayed.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`

	// FailedAt is when the delivery permanently failed.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset         int
	Limit          int
	OwnerID        string
	RegistrationID *id.ID
	From           *time.Time
	To             *time.Time
}
