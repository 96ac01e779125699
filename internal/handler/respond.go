package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/streakforge/internal/apperr"
	"github.com/dukerupert/streakforge/internal/auth"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps classified errors to their status code and message.
// Unclassified errors are logged and reported as a generic failure.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	case apperr.KindNotFound:
		writeMessage(w, http.StatusNotFound, err.Error())
		return
	case apperr.KindConflict:
		writeMessage(w, http.StatusConflict, err.Error())
		return
	case apperr.KindForbidden:
		writeMessage(w, http.StatusForbidden, err.Error())
		return
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		writeMessage(w, http.StatusUnauthorized, err.Error())
		return
	}
	logger.Error(op, "error", err)
	writeMessage(w, http.StatusInternalServerError, "something went wrong, please try again")
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// emptyIfNil keeps list endpoints from encoding null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
