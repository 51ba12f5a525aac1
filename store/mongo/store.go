// Package mongo implements the composite store on MongoDB using the official
// driver. Due-delivery claims use a FindOneAndUpdate loop so concurrent
// dispatchers never double-claim.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	hookstore "github.com/hookline/hookline/store"
)

// Collection name constants.
const (
	colEventTypes    = "hookline_event_types"
	colRegistrations = "hookline_registrations"
	colEvents        = "hookline_events"
	colDeliveries    = "hookline_deliveries"
	colDLQ           = "hookline_dlq"
)

// Compile-time interface check.
var _ hookstore.Store = (*Store)(nil)

// Store implements store.Store on a MongoDB database.
type Store struct {
	db *mongod.Database
}

// New creates a new MongoDB store.
func New(db *mongod.Database) *Store {
	return &Store{db: db}
}

// Migrate creates indexes for all hookline collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("hookline/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (s *Store) Close() error {
	return s.db.Client().Disconnect(context.Background())
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks for the driver's not-found sentinel.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks for a unique index violation.
func isDuplicateKey(err error) bool {
	return mongod.IsDuplicateKeyError(err)
}

// migrationIndexes returns the index definitions for all hookline collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colEventTypes: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "group_name", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colRegistrations: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "active", Value: 1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "type", Value: 1}, {Key: "created_at", Value: -1}}},
			{
				Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colDeliveries: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_retry_at", Value: 1}}},
			{Keys: bson.D{{Key: "registration_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
		},
		colDLQ: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "failed_at", Value: -1}}},
			{Keys: bson.D{{Key: "registration_id", Value: 1}}},
		},
	}
}
