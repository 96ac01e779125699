package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/store"
)

func (s *Store) FindCompletion(ctx context.Context, userID, habitID string, date datekey.Key) (*model.Completion, error) {
	c, err := findOne[model.Completion](ctx, s.completions,
		bson.M{"ownerId": userID, "habitId": habitID, "date": date})
	if err != nil {
		return nil, fmt.Errorf("find completion: %w", err)
	}
	return c, nil
}

// AddCompletion returns store.ErrDuplicate if the habit already has a completion that day.
func (s *Store) AddCompletion(ctx context.Context, userID string, nc model.NewCompletion) (string, error) {
	c := model.Completion{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		HabitID:   nc.HabitID,
		Date:      nc.Date,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.completions.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return "", store.ErrDuplicate
	}
	if err != nil {
		return "", fmt.Errorf("insert completion: %w", err)
	}
	return c.ID, nil
}

func (s *Store) DeleteCompletion(ctx context.Context, userID, completionID string) error {
	if _, err := s.completions.DeleteOne(ctx, bson.M{"_id": completionID, "ownerId": userID}); err != nil {
		return fmt.Errorf("delete completion: %w", err)
	}
	return nil
}

// ListCompletions returns the user's completions by date; habitID "" lists all habits.
func (s *Store) ListCompletions(ctx context.Context, userID, habitID string) ([]model.Completion, error) {
	filter := bson.M{"ownerId": userID}
	if habitID != "" {
		filter["habitId"] = habitID
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	out, err := findAll[model.Completion](ctx, s.completions, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteCompletionsForHabit(ctx context.Context, userID, habitID string) (int64, error) {
	res, err := s.completions.DeleteMany(ctx, bson.M{"ownerId": userID, "habitId": habitID})
	if err != nil {
		return 0, fmt.Errorf("delete completions: %w", err)
	}
	return res.DeletedCount, nil
}
