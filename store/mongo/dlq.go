package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/id"
)

// Push records a permanently failed delivery in the DLQ.
func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	if _, err := s.db.Collection(colDLQ).InsertOne(ctx, toDLQEntryModel(entry)); err != nil {
		return fmt.Errorf("hookline/mongo: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries, optionally filtered.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	filter := bson.M{}
	if opts.OwnerID != "" {
		filter["owner_id"] = opts.OwnerID
	}
	if opts.RegistrationID != nil {
		filter["registration_id"] = opts.RegistrationID.String()
	}
	if opts.From != nil || opts.To != nil {
		rangeFilter := bson.M{}
		if opts.From != nil {
			rangeFilter["$gte"] = *opts.From
		}
		if opts.To != nil {
			rangeFilter["$lte"] = *opts.To
		}
		filter["failed_at"] = rangeFilter
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colDLQ).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("hookline/mongo: list dlq: %w", err)
	}
	defer cur.Close(ctx)

	var result []*dlq.Entry
	for cur.Next(ctx) {
		var m dlqEntryModel
		if decodeErr := cur.Decode(&m); decodeErr != nil {
			return nil, fmt.Errorf("hookline/mongo: list dlq decode: %w", decodeErr)
		}
		entry, convErr := fromDLQEntryModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, entry)
	}
	return result, cur.Err()
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel
	if err := s.db.Collection(colDLQ).FindOne(ctx, bson.M{"_id": dlqID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, hookline.ErrDLQNotFound
		}
		return nil, fmt.Errorf("hookline/mongo: get dlq: %w", err)
	}
	return fromDLQEntryModel(&m)
}

// Replay enqueues a fresh pending delivery from a DLQ entry and marks the
// entry replayed. The entry stays in the DLQ as audit history.
func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	replayedAt := now()
	if createErr := s.CreateDelivery(ctx, dlq.NewReplayDelivery(entry, replayedAt)); createErr != nil {
		return createErr
	}

	if _, err := s.db.Collection(colDLQ).UpdateByID(ctx, dlqID.String(),
		bson.M{"$set": bson.M{
			"replayed_at": replayedAt,
			"updated_at":  replayedAt,
		}},
	); err != nil {
		return fmt.Errorf("hookline/mongo: replay mark: %w", err)
	}
	return nil
}

// ReplayBulk replays all unreplayed DLQ entries in a time window.
func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	cur, err := s.db.Collection(colDLQ).Find(ctx, bson.M{
		"failed_at":   bson.M{"$gte": from, "$lte": to},
		"replayed_at": nil,
	})
	if err != nil {
		return 0, fmt.Errorf("hookline/mongo: replay bulk list: %w", err)
	}
	defer cur.Close(ctx)

	var count int64
	for cur.Next(ctx) {
		var m dlqEntryModel
		if decodeErr := cur.Decode(&m); decodeErr != nil {
			return count, fmt.Errorf("hookline/mongo: replay bulk decode: %w", decodeErr)
		}
		entry, convErr := fromDLQEntryModel(&m)
		if convErr != nil {
			return count, convErr
		}

		replayedAt := now()
		if createErr := s.CreateDelivery(ctx, dlq.NewReplayDelivery(entry, replayedAt)); createErr != nil {
			return count, createErr
		}
		if _, updateErr := s.db.Collection(colDLQ).UpdateByID(ctx, m.ID,
			bson.M{"$set": bson.M{
				"replayed_at": replayedAt,
				"updated_at":  replayedAt,
			}},
		); updateErr != nil {
			return count, fmt.Errorf("hookline/mongo: replay bulk mark: %w", updateErr)
		}
		count++
	}
	return count, cur.Err()
}

// Purge deletes DLQ entries older than a threshold.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(colDLQ).DeleteMany(ctx, bson.M{
		"failed_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("hookline/mongo: purge: %w", err)
	}
	return res.DeletedCount, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.db.Collection(colDLQ).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("hookline/mongo: count dlq: %w", err)
	}
	return count, nil
}
