// Package storage implements the document-store capability behind the
// mongo_* steps on MongoDB. Documents returned to scenario context carry
// stringified ids so they stay serializable.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/agentrun/agentrun/internal/common/config"
)

const defaultTimeout = 10 * time.Second

// Connect opens a MongoDB client and verifies the connection with a ping.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("storage: mongo uri is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return client, nil
}

// Store implements plugins.DocumentStore on one MongoDB database.
type Store struct {
	db      *mongo.Database
	timeout time.Duration
}

// New wraps a connected client and database name.
func New(client *mongo.Client, database string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{db: client.Database(database), timeout: timeout}
}

// InsertOne stores a document and returns its id as a hex string.
func (s *Store) InsertOne(ctx context.Context, collection string, document map[string]any) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.Collection(collection).InsertOne(opCtx, bson.M(document))
	if err != nil {
		return "", fmt.Errorf("storage: insert into %q: %w", collection, err)
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprintf("%v", res.InsertedID), nil
}

// FindOne returns the first matching document with its _id stringified, or
// nil when nothing matches.
func (s *Store) FindOne(ctx context.Context, collection string, filter map[string]any) (map[string]any, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc bson.M
	err := s.db.Collection(collection).FindOne(opCtx, normalizeFilter(filter)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: find in %q: %w", collection, err)
	}
	if oid, ok := doc["_id"].(bson.ObjectID); ok {
		doc["_id"] = oid.Hex()
	}
	return doc, nil
}

// UpdateOne applies a $set update to the first matching document and returns
// the modified count. An update that already carries operators is passed
// through unchanged.
func (s *Store) UpdateOne(ctx context.Context, collection string, filter, update map[string]any) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.Collection(collection).UpdateOne(opCtx, normalizeFilter(filter), normalizeUpdate(update))
	if err != nil {
		return 0, fmt.Errorf("storage: update in %q: %w", collection, err)
	}
	return res.ModifiedCount, nil
}

// DeleteOne removes the first matching document and returns the deleted count.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter map[string]any) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.Collection(collection).DeleteOne(opCtx, normalizeFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("storage: delete in %q: %w", collection, err)
	}
	return res.DeletedCount, nil
}

// normalizeFilter converts a hex string _id back into an ObjectID so lookups
// by previously returned ids keep working.
func normalizeFilter(filter map[string]any) bson.M {
	normalized := bson.M{}
	for key, value := range filter {
		if key == "_id" {
			if hex, ok := value.(string); ok {
				if oid, err := bson.ObjectIDFromHex(hex); err == nil {
					normalized[key] = oid
					continue
				}
			}
		}
		normalized[key] = value
	}
	return normalized
}

func normalizeUpdate(update map[string]any) bson.M {
	for key := range update {
		if len(key) > 0 && key[0] == '$' {
			return bson.M(update)
		}
	}
	return bson.M{"$set": bson.M(update)}
}
