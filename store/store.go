// Package store defines the composite Store interface for all Hookline
// persistence.
//
// Each subsystem defines its own store interface next to its types, and the
// aggregate Store composes them all. Backends implement the whole surface;
// consumers depend only on the slice they use.
package store

import (
	"context"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/registration"
)

// Store is the aggregate persistence interface.
type Store interface {
	catalog.Store
	registration.Store
	event.Store
	delivery.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
