package model

import (
	"strings"
	"time"
)

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
)

type FriendRequest struct {
	ID         string              `json:"id" bson:"_id"`
	SenderID   string              `json:"sender_id" bson:"senderId"`
	ReceiverID string              `json:"receiver_id" bson:"receiverId"`
	Status     FriendRequestStatus `json:"status" bson:"status"`
	PairKey    string              `json:"-" bson:"pairKey"`
	CreatedAt  time.Time           `json:"created_at" bson:"createdAt"`
}

// PairKey identifies the unordered pair {a, b}.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// Other returns the party of the request that is not uid.
func (r FriendRequest) Other(uid string) string {
	if r.SenderID == uid {
		return r.ReceiverID
	}
	return r.SenderID
}

// Involves reports whether uid is the sender or the receiver.
func (r FriendRequest) Involves(uid string) bool {
	return r.SenderID == uid || r.ReceiverID == uid
}
