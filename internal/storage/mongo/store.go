// Package mongo stores scraped records in a MongoDB collection, one document
// per listing.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
)

// Config captures the parameters required to reach the collection.
type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

type collection interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Store implements pet.Store on a Mongo collection. Ids are the ObjectIDs
// assigned by the server, hex encoded.
type Store struct {
	client *mongo.Client
	coll   collection
}

// New connects to Mongo and pings the deployment.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("store.mongo.uri is required")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, errors.New("store.mongo.database and store.mongo.collection are required")
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// NewWithCollection wraps an existing collection (primarily for testing).
func NewWithCollection(coll collection) *Store {
	return &Store{coll: coll}
}

// Insert stores records and returns the assigned ids in order.
func (s *Store) Insert(ctx context.Context, records []pet.Record) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}
	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		docs = append(docs, r)
	}
	res, err := s.coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("insert pets: %w", err)
	}
	ids := make([]string, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		if oid, ok := id.(primitive.ObjectID); ok {
			ids = append(ids, oid.Hex())
			continue
		}
		ids = append(ids, fmt.Sprint(id))
	}
	return ids, nil
}

// Replace empties the collection, then inserts records.
func (s *Store) Replace(ctx context.Context, records []pet.Record) ([]string, error) {
	if _, err := s.coll.DeleteMany(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("clear pets: %w", err)
	}
	return s.Insert(ctx, records)
}

// Find returns the records matching filter without their Mongo ids.
func (s *Store) Find(ctx context.Context, filter pet.Filter) ([]pet.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	cursor, err := s.coll.Find(ctx, BuildFilter(filter), options.Find().SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("find pets: %w", err)
	}
	out := []pet.Record{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode pets: %w", err)
	}
	return out, nil
}

// Close disconnects the client when the store owns one.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// BuildFilter translates filter into a Mongo query document.
func BuildFilter(filter pet.Filter) bson.M {
	query := bson.M{}
	for key, value := range map[string]*string{
		"county":   filter.County,
		"city":     filter.City,
		"category": filter.Category,
	} {
		if v := pet.Value(value); v != "" {
			query[key] = v
		}
	}
	if breed := pet.Value(filter.Breed); breed != "" {
		if filter.BreedPattern() {
			query["breed"] = primitive.Regex{Pattern: breed, Options: "i"}
		} else {
			query["breed"] = breed
		}
	}
	if expr := pet.Value(filter.DescriptionRegex); expr != "" {
		query["description"] = primitive.Regex{Pattern: expr, Options: "i"}
	}
	if rng := priceRange(filter); rng != nil {
		query["$or"] = bson.A{
			bson.M{"price.price_after_discount": rng},
			bson.M{
				"price.price_after_discount":        nil,
				"price.price_without_any_discounts": rng,
			},
		}
	}
	return query
}

func priceRange(filter pet.Filter) bson.M {
	if filter.MinPrice == nil && filter.MaxPrice == nil {
		return nil
	}
	rng := bson.M{}
	if filter.MinPrice != nil {
		rng["$gte"] = *filter.MinPrice
	}
	if filter.MaxPrice != nil {
		rng["$lte"] = *filter.MaxPrice
	}
	return rng
}
