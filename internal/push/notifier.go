package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/streakforge/internal/metrics"
	"github.com/dukerupert/streakforge/internal/model"
)

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// SubscriptionStore lists and prunes a user's browser subscriptions.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Notifier fans a notification out to every device of a user.
type Notifier struct {
	sender Sender
	subs   SubscriptionStore
	logger *slog.Logger
}

func NewNotifier(sender Sender, subs SubscriptionStore, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, subs: subs, logger: logger}
}

// Notify sends payload to each of the user's subscriptions and returns how many
// deliveries succeeded. Expired subscriptions are removed. An error is returned
// only when the subscriptions cannot be listed.
func (n *Notifier) Notify(ctx context.Context, userID string, payload Payload) (int, error) {
	subs, err := n.subs.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		metrics.Notifications.WithLabelValues("skipped").Inc()
		return 0, nil
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		err := n.sender.Send(ctx, sub, payload)
		switch {
		case errors.Is(err, ErrExpired):
			metrics.Notifications.WithLabelValues("expired").Inc()
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				n.logger.Warn("remove expired subscription", "user_id", userID, "error", err)
			}
		case err != nil:
			metrics.Notifications.WithLabelValues("failed").Inc()
			n.logger.Warn("push send failed", "user_id", userID, "device", sub.DeviceName, "error", err)
		default:
			metrics.Notifications.WithLabelValues("sent").Inc()
			sent++
		}
	}
	return sent, nil
}
