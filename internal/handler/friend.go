package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/streakforge/internal/auth"
	"github.com/dukerupert/streakforge/internal/social"
)

type FriendHandler struct {
	graph  *social.Graph
	logger *slog.Logger
}

func NewFriendHandler(graph *social.Graph, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{graph: graph, logger: logger}
}

type friendRequestBody struct {
	Email string `json:"email"`
}

// Friends handles GET /api/friends
func (h *FriendHandler) Friends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.graph.Friends(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list friends", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(friends))
}

// Requests handles GET /api/friends/requests
func (h *FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.graph.PendingRequests(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list friend requests", err)
		return
	}
	reqs.Incoming = emptyIfNil(reqs.Incoming)
	reqs.Outgoing = emptyIfNil(reqs.Outgoing)
	writeJSON(w, http.StatusOK, reqs)
}

// Send handles POST /api/friends/requests
func (h *FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req friendRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	fr, err := h.graph.SendRequest(r.Context(), auth.UserID(r.Context()), req.Email)
	if err != nil {
		writeError(w, h.logger, "send friend request", err)
		return
	}
	writeJSON(w, http.StatusCreated, fr)
}

// Accept handles POST /api/friends/requests/{id}/accept
func (h *FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	fr, err := h.graph.Accept(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "accept friend request", err)
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

// End handles DELETE /api/friends/requests/{id}: decline, cancel or unfriend.
func (h *FriendHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.graph.End(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "end friend request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leaderboard handles GET /api/leaderboard
func (h *FriendHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.graph.Leaderboard(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(entries))
}
