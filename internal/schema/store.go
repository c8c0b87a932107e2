package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/p-arndt/querybench/internal/config"
)

// Sentinel errors
var (
	ErrNotFound  = errors.New("schema not found")
	ErrInvalidID = errors.New("invalid schema id")
)

// Store reads logical schema documents from MongoDB.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect opens the MongoDB client once at process start.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// NewStore wraps an existing collection.
func NewStore(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Get loads the schema document with the given hex ObjectID.
func (s *Store) Get(ctx context.Context, dbID string) (*Database, error) {
	oid, err := primitive.ObjectIDFromHex(dbID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, dbID)
	}

	var db Database
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&db)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dbID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading schema %s: %w", dbID, err)
	}
	return &db, nil
}
