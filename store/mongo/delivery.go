package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/id"
)

// CreateDelivery appends a pending delivery to the ledger.
func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	if _, err := s.db.Collection(colDeliveries).InsertOne(ctx, toDeliveryModel(d)); err != nil {
		return fmt.Errorf("hookline/mongo: create delivery: %w", err)
	}
	return nil
}

// CreateDeliveryBatch appends multiple deliveries atomically (fan-out).
func (s *Store) CreateDeliveryBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	models := make([]any, len(ds))
	for i, d := range ds {
		models[i] = toDeliveryModel(d)
	}

	if _, err := s.db.Collection(colDeliveries).InsertMany(ctx, models); err != nil {
		return fmt.Errorf("hookline/mongo: create delivery batch: %w", err)
	}
	return nil
}

// DequeueDue claims non-terminal deliveries due at dueAt, soonest-first.
// Each claim is a FindOneAndUpdate that pushes next_retry_at forward by the
// claim lease, so concurrent dispatchers never double-claim and a crashed
// worker's claim simply expires.
func (s *Store) DequeueDue(ctx context.Context, dueAt time.Time, limit int) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, limit)
	col := s.db.Collection(colDeliveries)
	claimed := dueAt.Add(delivery.ClaimLease)

	for range limit {
		filter := bson.M{
			"status":        bson.M{"$in": []string{string(delivery.StatusPending), string(delivery.StatusRetrying)}},
			"next_retry_at": bson.M{"$lte": dueAt},
		}
		update := bson.M{
			"$set": bson.M{
				"next_retry_at": claimed,
				"updated_at":    now(),
			},
		}
		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.Before).
			SetSort(bson.D{{Key: "next_retry_at", Value: 1}})

		var m deliveryModel
		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				break
			}
			return nil, fmt.Errorf("hookline/mongo: dequeue due: %w", err)
		}

		d, convErr := fromDeliveryModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, d)
	}

	return result, nil
}

// UpdateDelivery overwrites a delivery's mutable fields by ID (last-writer-wins).
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	res, err := s.db.Collection(colDeliveries).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("hookline/mongo: update delivery: %w", err)
	}
	if res.MatchedCount == 0 {
		return hookline.ErrDeliveryNotFound
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.db.Collection(colDeliveries).FindOne(ctx, bson.M{"_id": delID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, hookline.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("hookline/mongo: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

// ListByRegistration returns delivery history for a registration, newest-first.
func (s *Store) ListByRegistration(ctx context.Context, regID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	filter := bson.M{"registration_id": regID.String()}
	if opts.Status != nil {
		filter["status"] = string(*opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	return s.findDeliveries(ctx, filter, findOpts)
}

// ListByEvent returns all deliveries fanned out from one event.
func (s *Store) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findDeliveries(ctx, bson.M{"event_id": evtID.String()}, findOpts)
}

// CountPending returns the number of non-terminal deliveries.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.db.Collection(colDeliveries).CountDocuments(ctx, bson.M{
		"status": bson.M{"$in": []string{string(delivery.StatusPending), string(delivery.StatusRetrying)}},
	})
	if err != nil {
		return 0, fmt.Errorf("hookline/mongo: count pending: %w", err)
	}
	return count, nil
}

func (s *Store) findDeliveries(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*delivery.Delivery, error) {
	cur, err := s.db.Collection(colDeliveries).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("hookline/mongo: find deliveries: %w", err)
	}
	defer cur.Close(ctx)

	var result []*delivery.Delivery
	for cur.Next(ctx) {
		var m deliveryModel
		if decodeErr := cur.Decode(&m); decodeErr != nil {
			return nil, fmt.Errorf("hookline/mongo: find deliveries decode: %w", decodeErr)
		}
		d, convErr := fromDeliveryModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, d)
	}
	return result, cur.Err()
}
