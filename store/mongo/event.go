package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
)

// CreateEvent persists an event. The sparse unique index on idempotency_key
// turns a duplicate key into the idempotency sentinel.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	if _, err := s.db.Collection(colEvents).InsertOne(ctx, toEventModel(evt)); err != nil {
		if isDuplicateKey(err) {
			return hookline.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("hookline/mongo: create event: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel
	if err := s.db.Collection(colEvents).FindOne(ctx, bson.M{"_id": evtID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, hookline.ErrEventNotFound
		}
		return nil, fmt.Errorf("hookline/mongo: get event: %w", err)
	}
	return fromEventModel(&m)
}

// ListEvents returns events, optionally filtered.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return s.listEvents(ctx, bson.M{}, opts)
}

// ListEventsByOwner returns events for a specific owner.
func (s *Store) ListEventsByOwner(ctx context.Context, ownerID string, opts event.ListOpts) ([]*event.Event, error) {
	return s.listEvents(ctx, bson.M{"owner_id": ownerID}, opts)
}

func (s *Store) listEvents(ctx context.Context, filter bson.M, opts event.ListOpts) ([]*event.Event, error) {
	if opts.Type != "" {
		filter["type"] = opts.Type
	}
	if opts.From != nil || opts.To != nil {
		rangeFilter := bson.M{}
		if opts.From != nil {
			rangeFilter["$gte"] = *opts.From
		}
		if opts.To != nil {
			rangeFilter["$lte"] = *opts.To
		}
		filter["created_at"] = rangeFilter
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colEvents).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("hookline/mongo: list events: %w", err)
	}
	defer cur.Close(ctx)

	var result []*event.Event
	for cur.Next(ctx) {
		var m eventModel
		if decodeErr := cur.Decode(&m); decodeErr != nil {
			return nil, fmt.Errorf("hookline/mongo: list events decode: %w", decodeErr)
		}
		evt, convErr := fromEventModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, evt)
	}
	return result, cur.Err()
}
