package hookline

import (
	"errors"

	"github.com/hookline/hookline/registration"
)

// Sentinel errors returned by Hookline operations.
var (
	// ErrNoStore is returned when a Service is created without a store.
	ErrNoStore = errors.New("hookline: store is required")

	// ErrRegistrationNotFound is returned when a registration cannot be found
	// or belongs to a different owner. It aliases registration.ErrNotFound so
	// the delivery engine can match it without importing this package.
	ErrRegistrationNotFound = registration.ErrNotFound

	// ErrEventTypeNotFound is returned when an event type is not registered in the catalog.
	ErrEventTypeNotFound = errors.New("hookline: event type not found")

	// ErrEventTypeDeprecated is returned when triggering an event with a deprecated type.
	ErrEventTypeDeprecated = errors.New("hookline: event type is deprecated")

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("hookline: payload validation failed")

	// ErrDuplicateIdempotencyKey is returned when an event with the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("hookline: duplicate idempotency key")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("hookline: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("hookline: migration failed")

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = errors.New("hookline: dlq entry not found")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("hookline: delivery not found")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("hookline: event not found")
)
