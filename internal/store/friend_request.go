package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/streakforge/internal/model"
)

type FriendRequestStore struct {
	db *sql.DB
}

func NewFriendRequestStore(db *sql.DB) *FriendRequestStore {
	return &FriendRequestStore{db: db}
}

// FriendRequestFilter selects requests; empty fields match anything.
type FriendRequestFilter struct {
	SenderID   string
	ReceiverID string
	Status     model.FriendRequestStatus
}

func scanFriendRequest(scanner interface{ Scan(...any) error }) (*model.FriendRequest, error) {
	var r model.FriendRequest
	err := scanner.Scan(&r.ID, &r.SenderID, &r.ReceiverID, &r.Status, &r.PairKey, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const friendRequestCols = `id, sender_id, receiver_id, status, pair_key, created_at`

// CreateFriendRequest inserts a pending request. It returns ErrDuplicate if any
// request already exists between the two users, in either direction.
func (s *FriendRequestStore) CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error) {
	r := model.FriendRequest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.FriendRequestPending,
		PairKey:    model.PairKey(senderID, receiverID),
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friend_requests (`+friendRequestCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SenderID, r.ReceiverID, r.Status, r.PairKey, r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert friend request: %w", err)
	}
	return &r, nil
}

func (s *FriendRequestStore) GetFriendRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+friendRequestCols+` FROM friend_requests WHERE id = ?`, id)
	r, err := scanFriendRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get friend request: %w", err)
	}
	return r, nil
}

// FindFriendRequestBetween returns the request linking a and b in either direction.
func (s *FriendRequestStore) FindFriendRequestBetween(ctx context.Context, a, b string) (*model.FriendRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+friendRequestCols+` FROM friend_requests WHERE pair_key = ?`,
		model.PairKey(a, b),
	)
	r, err := scanFriendRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find friend request: %w", err)
	}
	return r, nil
}

func (s *FriendRequestStore) ListFriendRequests(ctx context.Context, f FriendRequestFilter) ([]model.FriendRequest, error) {
	query := `SELECT ` + friendRequestCols + ` FROM friend_requests WHERE 1 = 1`
	var args []any
	if f.SenderID != "" {
		query += ` AND sender_id = ?`
		args = append(args, f.SenderID)
	}
	if f.ReceiverID != "" {
		query += ` AND receiver_id = ?`
		args = append(args, f.ReceiverID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	defer rows.Close()

	var requests []model.FriendRequest
	for rows.Next() {
		r, err := scanFriendRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// UpdateFriendRequestStatus moves a request from one status to another.
// It returns ErrNotFound if the request is missing or no longer in status from.
func (s *FriendRequestStore) UpdateFriendRequestStatus(ctx context.Context, id string, from, to model.FriendRequestStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE friend_requests SET status = ? WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("update friend request: %w", err)
	}
	return requireOneRow(result)
}

func (s *FriendRequestStore) DeleteFriendRequest(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM friend_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return nil
}
