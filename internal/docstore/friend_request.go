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

// CreateFriendRequest inserts a pending request. The unique pairKey index makes a
// second request between the same users fail with store.ErrDuplicate.
func (s *Store) CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error) {
	r := model.FriendRequest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.FriendRequestPending,
		PairKey:    model.PairKey(senderID, receiverID),
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.friendRequests.InsertOne(ctx, r)
	if mongo.IsDuplicateKeyError(err) {
		return nil, store.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert friend request: %w", err)
	}
	return &r, nil
}

func (s *Store) GetFriendRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	r, err := findOne[model.FriendRequest](ctx, s.friendRequests, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("get friend request: %w", err)
	}
	return r, nil
}

func (s *Store) FindFriendRequestBetween(ctx context.Context, a, b string) (*model.FriendRequest, error) {
	r, err := findOne[model.FriendRequest](ctx, s.friendRequests, bson.M{"pairKey": model.PairKey(a, b)})
	if err != nil {
		return nil, fmt.Errorf("find friend request: %w", err)
	}
	return r, nil
}

func (s *Store) ListFriendRequests(ctx context.Context, f store.FriendRequestFilter) ([]model.FriendRequest, error) {
	filter := bson.M{}
	if f.SenderID != "" {
		filter["senderId"] = f.SenderID
	}
	if f.ReceiverID != "" {
		filter["receiverId"] = f.ReceiverID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	out, err := findAll[model.FriendRequest](ctx, s.friendRequests, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	return out, nil
}

// UpdateFriendRequestStatus returns store.ErrNotFound if the request is missing
// or no longer in status from.
func (s *Store) UpdateFriendRequestStatus(ctx context.Context, id string, from, to model.FriendRequestStatus) error {
	res, err := s.friendRequests.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to}},
	)
	if err != nil {
		return fmt.Errorf("update friend request: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteFriendRequest(ctx context.Context, id string) error {
	if _, err := s.friendRequests.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return nil
}
