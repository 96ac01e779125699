// Package social manages friend requests and the friends leaderboard.
//
// Friendship is derived solely from accepted friend requests; there is no
// second friends list to keep in sync.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/streakforge/internal/apperr"
	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/store"
	"github.com/dukerupert/streakforge/internal/websocket"
)

const profileFetchLimit = 8

// Store is the part of the habit store adapter the social graph needs.
type Store interface {
	GetProfile(ctx context.Context, uid string) (*model.Profile, error)
	FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	ListHabits(ctx context.Context, userID string) ([]model.Habit, error)
	ListCompletions(ctx context.Context, userID, habitID string) ([]model.Completion, error)

	CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error)
	GetFriendRequest(ctx context.Context, id string) (*model.FriendRequest, error)
	FindFriendRequestBetween(ctx context.Context, a, b string) (*model.FriendRequest, error)
	ListFriendRequests(ctx context.Context, f store.FriendRequestFilter) ([]model.FriendRequest, error)
	UpdateFriendRequestStatus(ctx context.Context, id string, from, to model.FriendRequestStatus) error
	DeleteFriendRequest(ctx context.Context, id string) error
}

// Publisher receives change notifications for a user.
type Publisher interface {
	Publish(userID string, msg websocket.Message)
}

// Notifier tells a user about a new friend request out of band.
type Notifier interface {
	FriendRequestReceived(ctx context.Context, sender, receiver *model.Profile) error
}

// Friend is an accepted connection as seen by one of its parties.
type Friend struct {
	RequestID string         `json:"request_id"`
	Profile   *model.Profile `json:"profile"`
}

// PendingRequest is a pending request together with the other party's profile.
type PendingRequest struct {
	Request model.FriendRequest `json:"request"`
	Profile *model.Profile      `json:"profile"`
}

// Requests lists a user's pending requests in both directions.
type Requests struct {
	Incoming []PendingRequest `json:"incoming"`
	Outgoing []PendingRequest `json:"outgoing"`
}

type Option func(*Graph)

// WithNotifier sends an out-of-band notice to the receiver of each new request.
func WithNotifier(n Notifier) Option {
	return func(g *Graph) { g.notifier = n }
}

// WithClock sets the calendar used to decide which streaks are still alive.
func WithClock(c *datekey.Clock) Option {
	return func(g *Graph) { g.clock = c }
}

type Graph struct {
	store    Store
	hub      Publisher
	notifier Notifier
	metric   Metric
	clock    *datekey.Clock
	logger   *slog.Logger
}

// New creates a Graph. hub may be nil. The clock defaults to UTC.
func New(st Store, hub Publisher, metric Metric, logger *slog.Logger, opts ...Option) *Graph {
	g := &Graph{store: st, hub: hub, metric: metric, clock: datekey.NewClock(time.UTC), logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SendRequest creates a pending request from senderID to the user with receiverEmail.
func (g *Graph) SendRequest(ctx context.Context, senderID, receiverEmail string) (*model.FriendRequest, error) {
	receiverEmail = strings.TrimSpace(receiverEmail)
	if receiverEmail == "" {
		return nil, apperr.Validation("email is required")
	}

	receiver, err := g.store.FindProfileByEmail(ctx, receiverEmail)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, apperr.NotFound("user not found")
	}
	if receiver.UID == senderID {
		return nil, apperr.Validation("you can't add yourself")
	}

	existing, err := g.store.FindFriendRequestBetween(ctx, senderID, receiver.UID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errDuplicateRequest()
	}

	r, err := g.store.CreateFriendRequest(ctx, senderID, receiver.UID)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, errDuplicateRequest()
	}
	if err != nil {
		return nil, err
	}

	g.publishBoth(r, "created")
	g.notify(ctx, senderID, receiver)
	return r, nil
}

// Accept moves a pending request to accepted. Only its receiver may accept it.
func (g *Graph) Accept(ctx context.Context, userID, requestID string) (*model.FriendRequest, error) {
	r, err := g.visibleRequest(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if r.ReceiverID != userID {
		return nil, apperr.Forbidden("only the recipient can accept a friend request")
	}
	if r.Status != model.FriendRequestPending {
		return nil, apperr.Conflict("friend request is not pending")
	}

	err = g.store.UpdateFriendRequestStatus(ctx, r.ID, model.FriendRequestPending, model.FriendRequestAccepted)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("friend request not found")
	}
	if err != nil {
		return nil, err
	}

	r.Status = model.FriendRequestAccepted
	g.publishBoth(r, "accepted")
	return r, nil
}

// End deletes a request in any status. Either party may end it, which covers
// declining, cancelling and unfriending.
func (g *Graph) End(ctx context.Context, userID, requestID string) error {
	r, err := g.visibleRequest(ctx, userID, requestID)
	if err != nil {
		return err
	}
	if err := g.store.DeleteFriendRequest(ctx, r.ID); err != nil {
		return err
	}
	g.publishBoth(r, "deleted")
	return nil
}

// Friends lists the users connected to userID by an accepted request.
func (g *Graph) Friends(ctx context.Context, userID string) ([]Friend, error) {
	accepted, err := g.acceptedRequests(ctx, userID)
	if err != nil {
		return nil, err
	}

	uids := make([]string, len(accepted))
	for i, r := range accepted {
		uids[i] = r.Other(userID)
	}
	profiles, err := g.fetchProfiles(ctx, uids)
	if err != nil {
		return nil, err
	}

	friends := make([]Friend, 0, len(accepted))
	for i, r := range accepted {
		if profiles[i] == nil {
			continue
		}
		friends = append(friends, Friend{RequestID: r.ID, Profile: profiles[i]})
	}
	return friends, nil
}

// PendingRequests lists pending requests sent to and by userID.
func (g *Graph) PendingRequests(ctx context.Context, userID string) (*Requests, error) {
	incoming, err := g.store.ListFriendRequests(ctx, store.FriendRequestFilter{ReceiverID: userID, Status: model.FriendRequestPending})
	if err != nil {
		return nil, err
	}
	outgoing, err := g.store.ListFriendRequests(ctx, store.FriendRequestFilter{SenderID: userID, Status: model.FriendRequestPending})
	if err != nil {
		return nil, err
	}

	in, err := g.withProfiles(ctx, userID, incoming)
	if err != nil {
		return nil, err
	}
	out, err := g.withProfiles(ctx, userID, outgoing)
	if err != nil {
		return nil, err
	}
	return &Requests{Incoming: in, Outgoing: out}, nil
}

func (g *Graph) withProfiles(ctx context.Context, userID string, requests []model.FriendRequest) ([]PendingRequest, error) {
	uids := make([]string, len(requests))
	for i, r := range requests {
		uids[i] = r.Other(userID)
	}
	profiles, err := g.fetchProfiles(ctx, uids)
	if err != nil {
		return nil, err
	}
	out := make([]PendingRequest, len(requests))
	for i, r := range requests {
		out[i] = PendingRequest{Request: r, Profile: profiles[i]}
	}
	return out, nil
}

// visibleRequest loads a request userID is party to. Requests between other
// users are reported as not found.
func (g *Graph) visibleRequest(ctx context.Context, userID, requestID string) (*model.FriendRequest, error) {
	r, err := g.store.GetFriendRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r == nil || !r.Involves(userID) {
		return nil, apperr.NotFound("friend request not found")
	}
	return r, nil
}

func (g *Graph) acceptedRequests(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	sent, err := g.store.ListFriendRequests(ctx, store.FriendRequestFilter{SenderID: userID, Status: model.FriendRequestAccepted})
	if err != nil {
		return nil, err
	}
	received, err := g.store.ListFriendRequests(ctx, store.FriendRequestFilter{ReceiverID: userID, Status: model.FriendRequestAccepted})
	if err != nil {
		return nil, err
	}
	return append(sent, received...), nil
}

// fetchProfiles loads profiles concurrently; the result lines up with uids and
// holds nil for users without a profile.
func (g *Graph) fetchProfiles(ctx context.Context, uids []string) ([]*model.Profile, error) {
	profiles := make([]*model.Profile, len(uids))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(profileFetchLimit)
	for i, uid := range uids {
		eg.Go(func() error {
			p, err := g.store.GetProfile(ctx, uid)
			if err != nil {
				return fmt.Errorf("profile %s: %w", uid, err)
			}
			profiles[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (g *Graph) publishBoth(r *model.FriendRequest, action string) {
	if g.hub == nil {
		return
	}
	extra := map[string]any{"sender_id": r.SenderID, "receiver_id": r.ReceiverID, "status": string(r.Status)}
	g.hub.Publish(r.SenderID, websocket.NewMessage("friend_request", action, r.ID, extra))
	g.hub.Publish(r.ReceiverID, websocket.NewMessage("friend_request", action, r.ID, extra))
}

func (g *Graph) notify(ctx context.Context, senderID string, receiver *model.Profile) {
	if g.notifier == nil {
		return
	}
	sender, err := g.store.GetProfile(ctx, senderID)
	if err != nil || sender == nil {
		g.logger.Warn("friend request notice skipped", "sender_id", senderID, "error", err)
		return
	}
	if err := g.notifier.FriendRequestReceived(ctx, sender, receiver); err != nil {
		g.logger.Warn("friend request notice failed", "receiver_id", receiver.UID, "error", err)
	}
}

func errDuplicateRequest() error {
	return apperr.Conflict("you are already friends or a request is pending")
}
