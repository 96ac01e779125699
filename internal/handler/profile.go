package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/streakforge/internal/auth"
	"github.com/dukerupert/streakforge/internal/media"
	"github.com/dukerupert/streakforge/internal/profile"
)

type ProfileHandler struct {
	profiles *profile.Service
	logger   *slog.Logger
}

func NewProfileHandler(profiles *profile.Service, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
}

// remindersRequest is partial: an absent field is left unchanged, and a
// "time" of null clears the saved time.
type remindersRequest struct {
	Enabled *bool           `json:"enabled"`
	Time    json.RawMessage `json:"time"`
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, err := h.profiles.UpdateDisplayName(r.Context(), auth.UserID(r.Context()), req.DisplayName)
	if err != nil {
		writeError(w, h.logger, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UploadPhoto handles POST /api/profile/photo as a multipart form with a "photo" file.
func (h *ProfileHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxPhotoSize+1<<10)
	file, header, err := r.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "photo is too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	if header.Size > media.MaxPhotoSize {
		writeMessage(w, http.StatusRequestEntityTooLarge, "photo is too large")
		return
	}

	p, err := h.profiles.UploadPhoto(r.Context(), auth.UserID(r.Context()), file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, h.logger, "upload photo", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SetReminders handles PUT /api/profile/reminders
func (h *ProfileHandler) SetReminders(w http.ResponseWriter, r *http.Request) {
	var req remindersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	change := profile.Reminders{Enabled: req.Enabled}
	if len(req.Time) > 0 {
		var hhmm *string
		if err := json.Unmarshal(req.Time, &hhmm); err != nil {
			writeMessage(w, http.StatusBadRequest, "time must be \"HH:MM\" or null")
			return
		}
		if hhmm == nil {
			hhmm = new(string)
		}
		change.Time = hhmm
	}
	p, err := h.profiles.SetReminders(r.Context(), auth.UserID(r.Context()), change)
	if err != nil {
		writeError(w, h.logger, "set reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
