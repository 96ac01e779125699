// Package docstore is the MongoDB implementation of the habit, completion,
// profile and friend request stores. It returns the same sentinel errors as
// the SQLite adapter in package store.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	habitsColl         = "habits"
	completionsColl    = "completions"
	profilesColl       = "profiles"
	friendRequestsColl = "friend_requests"
)

// Store holds the collections backing the document model.
type Store struct {
	client         *mongo.Client
	db             *mongo.Database
	habits         *mongo.Collection
	completions    *mongo.Collection
	profiles       *mongo.Collection
	friendRequests *mongo.Collection
}

// Connect dials uri, verifies the connection with a ping and ensures indexes.
// The database name comes from the URI path, defaulting to "streakforge".
func Connect(ctx context.Context, uri string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := New(client.Database(databaseName(uri)))
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle.
func New(db *mongo.Database) *Store {
	return &Store{
		db:             db,
		habits:         db.Collection(habitsColl),
		completions:    db.Collection(completionsColl),
		profiles:       db.Collection(profilesColl),
		friendRequests: db.Collection(friendRequestsColl),
	}
}

func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "streakforge"
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		return name
	}
	return "streakforge"
}

// EnsureIndexes creates the uniqueness and lookup indexes the adapter relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.habits, mongo.IndexModel{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "order", Value: 1}, {Key: "createdAt", Value: 1}}}},
		{s.completions, mongo.IndexModel{
			Keys:    bson.D{{Key: "habitId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.completions, mongo.IndexModel{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "date", Value: 1}}}},
		{s.profiles, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetCollation(emailCollation),
		}},
		{s.friendRequests, mongo.IndexModel{
			Keys:    bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}
	for _, spec := range specs {
		if _, err := spec.coll.Indexes().CreateOne(ctx, spec.model); err != nil {
			return fmt.Errorf("create index on %s: %w", spec.coll.Name(), err)
		}
	}
	return nil
}

// Close disconnects the client when the store owns it.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Drop removes every collection. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// emailCollation matches emails case-insensitively.
var emailCollation = &options.Collation{Locale: "en", Strength: 2}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOneOptions) (*T, error) {
	var v T
	err := coll.FindOne(ctx, filter, opts...).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
