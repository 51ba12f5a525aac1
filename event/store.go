package event

import (
	"context"

	"github.com/hookline/hookline/id"
)

// Store defines the persistence contract for triggered events.
type Store interface {
	// CreateEvent persists an event. Must be durable before returning.
	// Returns the duplicate-idempotency-key sentinel on key conflict.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// ListEvents returns events, optionally filtered by type or time range.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	// ListEventsByOwner returns events for a specific owner.
	ListEventsByOwner(ctx context.Context, ownerID string, opts ListOpts) ([]*Event, error)
}
