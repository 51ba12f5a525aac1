package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/registration"
)

// CreateRegistration persists a new registration.
func (s *Store) CreateRegistration(ctx context.Context, r *registration.Registration) error {
	if _, err := s.db.Collection(colRegistrations).InsertOne(ctx, toRegistrationModel(r)); err != nil {
		return fmt.Errorf("hookline/mongo: create registration: %w", err)
	}
	return nil
}

// GetRegistration returns a registration by ID, scoped to ownerID.
func (s *Store) GetRegistration(ctx context.Context, regID id.ID, ownerID string) (*registration.Registration, error) {
	filter := bson.M{"_id": regID.String()}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}

	var m registrationModel
	if err := s.db.Collection(colRegistrations).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, hookline.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("hookline/mongo: get registration: %w", err)
	}
	return fromRegistrationModel(&m)
}

// UpdateRegistration modifies an existing registration.
func (s *Store) UpdateRegistration(ctx context.Context, r *registration.Registration) error {
	m := toRegistrationModel(r)
	m.UpdatedAt = now()

	res, err := s.db.Collection(colRegistrations).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("hookline/mongo: update registration: %w", err)
	}
	if res.MatchedCount == 0 {
		return hookline.ErrRegistrationNotFound
	}
	return nil
}

// DeleteRegistration removes a registration. Its deliveries remain.
func (s *Store) DeleteRegistration(ctx context.Context, regID id.ID) error {
	res, err := s.db.Collection(colRegistrations).DeleteOne(ctx, bson.M{"_id": regID.String()})
	if err != nil {
		return fmt.Errorf("hookline/mongo: delete registration: %w", err)
	}
	if res.DeletedCount == 0 {
		return hookline.ErrRegistrationNotFound
	}
	return nil
}

// ListRegistrations returns registrations for an owner, optionally filtered.
func (s *Store) ListRegistrations(ctx context.Context, ownerID string, opts registration.ListOpts) ([]*registration.Registration, error) {
	filter := bson.M{"owner_id": ownerID}
	if opts.Active != nil {
		filter["active"] = *opts.Active
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colRegistrations).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("hookline/mongo: list registrations: %w", err)
	}
	defer cur.Close(ctx)

	var result []*registration.Registration
	for cur.Next(ctx) {
		var m registrationModel
		if decodeErr := cur.Decode(&m); decodeErr != nil {
			return nil, fmt.Errorf("hookline/mongo: list registrations decode: %w", decodeErr)
		}
		r, convErr := fromRegistrationModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, r)
	}
	return result, cur.Err()
}

// Resolve finds all active registrations subscribed to an event type for an
// owner. Subscription patterns are glob-matched in memory: the candidate set
// is already narrowed to the owner's active registrations by the index.
func (s *Store) Resolve(ctx context.Context, ownerID, eventType string) ([]*registration.Registration, error) {
	cur, err := s.db.Collection(colRegistrations).Find(ctx, bson.M{
		"owner_id": ownerID,
		"active":   true,
	})
	if err != nil {
		return nil, fmt.Errorf("hookline/mongo: resolve registrations: %w", err)
	}
	defer cur.Close(ctx)

	var result []*registration.Registration
	for cur.Next(ctx) {
		var m registrationModel
		if decodeErr := cur.Decode(&m); decodeErr != nil {
			return nil, fmt.Errorf("hookline/mongo: resolve decode: %w", decodeErr)
		}
		r, convErr := fromRegistrationModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		if r.Subscribes(eventType, catalog.Match) {
			result = append(result, r)
		}
	}
	return result, cur.Err()
}

// SetActive enables or disables a registration.
func (s *Store) SetActive(ctx context.Context, regID id.ID, active bool) error {
	res, err := s.db.Collection(colRegistrations).UpdateByID(ctx, regID.String(),
		bson.M{"$set": bson.M{
			"active":     active,
			"updated_at": now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("hookline/mongo: set active: %w", err)
	}
	if res.MatchedCount == 0 {
		return hookline.ErrRegistrationNotFound
	}
	return nil
}
