package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/streakforge/internal/auth"
	"github.com/dukerupert/streakforge/internal/push"
	"github.com/dukerupert/streakforge/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	notifier  *push.Notifier
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, notifier *push.Notifier, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, notifier: notifier, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeMessage(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	sub, err := h.pushStore.CreateSubscription(r.Context(), auth.UserID(r.Context()), req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		writeError(w, h.logger, "create push subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.pushStore.DeleteSubscription(r.Context(), id, auth.UserID(r.Context())); err != nil {
		writeError(w, h.logger, "delete push subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list push subscriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(subs))
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if !h.service.Configured() {
		writeMessage(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	sent, err := h.notifier.Notify(r.Context(), auth.UserID(r.Context()), push.Payload{
		Title: "Test Notification",
		Body:  "Push notifications are working!",
		URL:   "/settings",
		Tag:   "test",
	})
	if err != nil {
		writeError(w, h.logger, "test push", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
