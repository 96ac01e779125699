package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukerupert/streakforge/internal/websocket"
)

// Publisher receives change notifications relayed from the change stream.
type Publisher interface {
	Publish(userID string, msg websocket.Message)
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
}

var entities = map[string]string{
	habitsColl:         "habit",
	completionsColl:    "completion",
	profilesColl:       "profile",
	friendRequestsColl: "friend_request",
}

var actions = map[string]string{
	"insert":  "created",
	"update":  "updated",
	"replace": "updated",
	"delete":  "deleted",
}

// Watch relays inserts, updates and deletes made by any process to the users
// they concern until ctx is cancelled. It requires a replica set or sharded
// cluster. A deleted document's owner comes from its pre-image, which needs
// MongoDB 6.0; on older servers only profile deletes are relayed.
func (s *Store) Watch(ctx context.Context, hub Publisher, logger *slog.Logger) error {
	logger = logger.With("component", "docstore_watch")

	for _, coll := range []string{habitsColl, completionsColl, friendRequestsColl} {
		if err := s.enablePreImages(ctx, coll); err != nil {
			logger.Warn("pre-images unavailable, deletes will not be relayed", "collection", coll, "error", err)
		}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}},
			"ns.coll":       bson.M{"$in": bson.A{habitsColl, completionsColl, profilesColl, friendRequestsColl}},
		}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	cs, err := s.db.Watch(ctx, pipeline, opts)
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	defer cs.Close(context.Background())

	logger.Info("change stream relay started")
	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			logger.Warn("decode change event", "error", err)
			continue
		}
		for _, userID := range owners(ev) {
			hub.Publish(userID, relayMessage(ev))
		}
	}
	if err := cs.Err(); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return fmt.Errorf("change stream: %w", err)
	}
	return nil
}

func (s *Store) enablePreImages(ctx context.Context, coll string) error {
	return s.db.RunCommand(ctx, bson.D{
		{Key: "collMod", Value: coll},
		{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
	}).Err()
}

func relayMessage(ev changeEvent) websocket.Message {
	return websocket.NewMessage(entities[ev.NS.Coll], actions[ev.OperationType], ev.DocumentKey.ID,
		map[string]any{"source": "change_stream"})
}

// owners lists the users an event should be delivered to. Deletes are
// resolved from the pre-image; a profile's key is its owner.
func owners(ev changeEvent) []string {
	if ev.NS.Coll == profilesColl {
		return nonEmpty(ev.DocumentKey.ID)
	}
	doc := ev.FullDocument
	if ev.OperationType == "delete" {
		doc = ev.FullDocumentBeforeChange
	}
	if doc == nil {
		return nil
	}
	str := func(key string) string {
		v, _ := doc[key].(string)
		return v
	}
	switch ev.NS.Coll {
	case friendRequestsColl:
		return nonEmpty(str("senderId"), str("receiverId"))
	default:
		return nonEmpty(str("ownerId"))
	}
}

func nonEmpty(ids ...string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
