// Package event defines the audit record persisted for every triggered event.
package event

import (
	"encoding/json"
	"time"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
)

// Event represents a domain event submitted for webhook delivery. The
// payload is serialized once at trigger time; deliveries carry a snapshot
// and never re-serialize it.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// Type is the dot-separated event type name (e.g. "order.created").
	Type string `json:"type"`

	// OwnerID identifies the tenant/user that triggered this event.
	OwnerID string `json:"owner_id"`

	// Data is the canonical serialized payload.
	Data json.RawMessage `json:"data"`

	// IdempotencyKey prevents duplicate event processing.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}
