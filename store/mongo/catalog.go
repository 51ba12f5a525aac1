package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/id"
)

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	col := s.db.Collection(colEventTypes)

	var existing eventTypeModel
	err := col.FindOne(ctx, bson.M{"name": et.Definition.Name}).Decode(&existing)
	if err == nil {
		// Upsert: keep the existing identity, replace the definition and
		// clear any deprecation.
		update := bson.M{"$set": bson.M{
			"description":    et.Definition.Description,
			"group_name":     et.Definition.Group,
			"schema":         []byte(et.Definition.Schema),
			"schema_version": et.Definition.SchemaVersion,
			"version":        et.Definition.Version,
			"example":        []byte(et.Definition.Example),
			"metadata":       et.Metadata,
			"is_deprecated":  false,
			"deprecated_at":  nil,
			"updated_at":     now(),
		}}
		if _, updateErr := col.UpdateByID(ctx, existing.ID, update); updateErr != nil {
			return fmt.Errorf("hookline/mongo: register type update: %w", updateErr)
		}
		if etID, parseErr := id.ParseEventTypeID(existing.ID); parseErr == nil {
			et.ID = etID
		}
		return nil
	}
	if !isNoDocuments(err) {
		return fmt.Errorf("hookline/mongo: register type lookup: %w", err)
	}

	if _, insertErr := col.InsertOne(ctx, toEventTypeModel(et)); insertErr != nil {
		return fmt.Errorf("hookline/mongo: register type: %w", insertErr)
	}
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	var m eventTypeModel
	err := s.db.Collection(colEventTypes).FindOne(ctx, bson.M{"name": name}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hookline.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("hookline/mongo: get type: %w", err)
	}
	return fromEventTypeModel(&m)
}

// ListTypes returns all registered event types, optionally filtered.
func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	filter := bson.M{}
	if !opts.IncludeDeprecated {
		filter["is_deprecated"] = false
	}
	if opts.Group != "" {
		filter["group_name"] = opts.Group
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colEventTypes).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("hookline/mongo: list types: %w", err)
	}
	defer cur.Close(ctx)

	var result []*catalog.EventType
	for cur.Next(ctx) {
		var m eventTypeModel
		if decodeErr := cur.Decode(&m); decodeErr != nil {
			return nil, fmt.Errorf("hookline/mongo: list types decode: %w", decodeErr)
		}
		et, convErr := fromEventTypeModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, et)
	}
	return result, cur.Err()
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(ctx context.Context, name string) error {
	t := now()
	res, err := s.db.Collection(colEventTypes).UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": bson.M{
			"is_deprecated": true,
			"deprecated_at": t,
			"updated_at":    t,
		}},
	)
	if err != nil {
		return fmt.Errorf("hookline/mongo: delete type: %w", err)
	}
	if res.MatchedCount == 0 {
		return hookline.ErrEventTypeNotFound
	}
	return nil
}
