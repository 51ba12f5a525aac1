package registration

import (
	"context"

	"github.com/hookline/hookline/id"
)

// Store defines the persistence contract for webhook registrations.
//
// Ownership scoping: GetRegistration takes the caller's owner ID and must
// treat a registration belonging to a different owner as not found. An
// empty ownerID means system access (delivery engine) and skips the check.
type Store interface {
	// CreateRegistration persists a new registration.
	CreateRegistration(ctx context.Context, r *Registration) error

	// GetRegistration returns a registration by ID, scoped to ownerID.
	GetRegistration(ctx context.Context, regID id.ID, ownerID string) (*Registration, error)

	// UpdateRegistration modifies an existing registration.
	UpdateRegistration(ctx context.Context, r *Registration) error

	// DeleteRegistration removes a registration. Its deliveries remain.
	DeleteRegistration(ctx context.Context, regID id.ID) error

	// ListRegistrations returns registrations for an owner, optionally filtered.
	ListRegistrations(ctx context.Context, ownerID string, opts ListOpts) ([]*Registration, error)

	// Resolve finds all active registrations subscribed to an event type
	// for an owner. This is the fan-out hot path.
	Resolve(ctx context.Context, ownerID, eventType string) ([]*Registration, error)

	// SetActive enables or disables a registration without deleting it.
	SetActive(ctx context.Context, regID id.ID, active bool) error
}
