package catalog

import "context"

// Store defines the persistence contract for the event type catalog.
type Store interface {
	// RegisterType creates or updates an event type definition (upsert by name).
	RegisterType(ctx context.Context, et *EventType) error

	// GetType returns an event type by name (e.g. "order.created").
	GetType(ctx context.Context, name string) (*EventType, error)

	// ListTypes returns all registered event types, optionally filtered.
	ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error)

	// DeleteType soft-deletes (deprecates) an event type.
	DeleteType(ctx context.Context, name string) error
}
