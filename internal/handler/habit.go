package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/streakforge/internal/auth"
	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/streak"
	"github.com/dukerupert/streakforge/internal/tracker"
)

type HabitHandler struct {
	syncer *tracker.Synchronizer
	logger *slog.Logger
}

func NewHabitHandler(syncer *tracker.Synchronizer, logger *slog.Logger) *HabitHandler {
	return &HabitHandler{syncer: syncer, logger: logger}
}

type habitRequest struct {
	Name string `json:"name"`
}

type sortRequest struct {
	IDs []string `json:"ids"`
}

type toggleRequest struct {
	Date string `json:"date"`
}

type snapshotResponse struct {
	*streak.Snapshot
	Today     datekey.Key     `json:"today"`
	DoneToday map[string]bool `json:"done_today"`
}

// Snapshot handles GET /api/snapshot
func (h *HabitHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.syncer.Snapshot(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "snapshot", err)
		return
	}
	today := h.syncer.Today()
	rec := streak.Reconcile(*snap, today)
	snap.Habits = emptyIfNil(snap.Habits)
	snap.Completions = emptyIfNil(snap.Completions)
	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: snap, Today: today, DoneToday: rec.DoneToday})
}

// List handles GET /api/habits
func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	habits, err := h.syncer.Habits(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list habits", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(habits))
}

// Create handles POST /api/habits
func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	habit, err := h.syncer.AddHabit(r.Context(), auth.UserID(r.Context()), req.Name)
	if err != nil {
		writeError(w, h.logger, "add habit", err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// Update handles PUT /api/habits/{id}
func (h *HabitHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	habit, err := h.syncer.RenameHabit(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, h.logger, "rename habit", err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// Delete handles DELETE /api/habits/{id}
func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.DeleteHabit(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete habit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sort handles PUT /api/habits/sort
func (h *HabitHandler) Sort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	userID := auth.UserID(r.Context())
	if err := h.syncer.ReorderHabits(r.Context(), userID, req.IDs); err != nil {
		writeError(w, h.logger, "reorder habits", err)
		return
	}
	habits, err := h.syncer.Habits(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "list habits", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(habits))
}

// Toggle handles POST /api/habits/{id}/toggle. The body is optional; without a
// date the habit is toggled for today.
func (h *HabitHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := h.syncer.Toggle(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), datekey.Key(req.Date))
	if err != nil {
		writeError(w, h.logger, "toggle completion", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Recompute handles POST /api/habits/recompute
func (h *HabitHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	rec, err := h.syncer.Recompute(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "recompute", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Completions handles GET /api/completions?habit_id=
func (h *HabitHandler) Completions(w http.ResponseWriter, r *http.Request) {
	completions, err := h.syncer.Completions(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("habit_id"))
	if err != nil {
		writeError(w, h.logger, "list completions", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(completions))
}
