package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/store"
)

func (s *Store) AddHabit(ctx context.Context, userID string, nh model.NewHabit) (string, error) {
	createdAt := nh.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	h := model.Habit{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Name:      nh.Name,
		Order:     nh.Order,
		CreatedAt: createdAt,
	}
	if _, err := s.habits.InsertOne(ctx, h); err != nil {
		return "", fmt.Errorf("insert habit: %w", err)
	}
	return h.ID, nil
}

func (s *Store) GetHabit(ctx context.Context, userID, habitID string) (*model.Habit, error) {
	h, err := findOne[model.Habit](ctx, s.habits, bson.M{"_id": habitID, "ownerId": userID})
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

func (s *Store) ListHabits(ctx context.Context, userID string) ([]model.Habit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "createdAt", Value: 1}})
	habits, err := findAll[model.Habit](ctx, s.habits, bson.M{"ownerId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, nil
}

// UpdateHabitAggregate overwrites the streak fields if the habit is still at expectedVersion.
func (s *Store) UpdateHabitAggregate(ctx context.Context, userID, habitID string, agg model.Aggregate, expectedVersion int64) error {
	res, err := s.habits.UpdateOne(ctx,
		bson.M{"_id": habitID, "ownerId": userID, "version": expectedVersion},
		bson.M{
			"$set": bson.M{"currentStreak": agg.CurrentStreak, "maxStreak": agg.MaxStreak},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update habit aggregate: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	h, err := s.GetHabit(ctx, userID, habitID)
	if err != nil {
		return err
	}
	if h == nil {
		return store.ErrNotFound
	}
	return store.ErrVersionConflict
}

func (s *Store) RenameHabit(ctx context.Context, userID, habitID, name string) error {
	res, err := s.habits.UpdateOne(ctx,
		bson.M{"_id": habitID, "ownerId": userID},
		bson.M{"$set": bson.M{"name": name}},
	)
	if err != nil {
		return fmt.Errorf("rename habit: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ReorderHabits sets each habit's order to its index in ids with one bulk write.
func (s *Store) ReorderHabits(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, len(ids))
	for i, id := range ids {
		writes[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id, "ownerId": userID}).
			SetUpdate(bson.M{"$set": bson.M{"order": i}})
	}
	if _, err := s.habits.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("reorder habits: %w", err)
	}
	return nil
}

func (s *Store) DeleteHabit(ctx context.Context, userID, habitID string) error {
	if _, err := s.habits.DeleteOne(ctx, bson.M{"_id": habitID, "ownerId": userID}); err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}
