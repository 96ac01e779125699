package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/streakforge/internal/auth"
	"github.com/dukerupert/streakforge/internal/websocket"
)

const sessionMaxAge = 90 * 24 * time.Hour

type AuthHandler struct {
	accounts      *auth.Accounts
	hub           *websocket.Hub
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(accounts *auth.Accounts, hub *websocket.Hub, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, hub: hub, secureCookies: secureCookies, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleLoginRequest struct {
	IDToken string `json:"id_token"`
}

// Register handles POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.Signup
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "register", err)
		return
	}
	h.setSessionCookie(w, res.Session.Token)
	writeJSON(w, http.StatusCreated, res)
}

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "login", err)
		return
	}
	h.setSessionCookie(w, res.Session.Token)
	writeJSON(w, http.StatusOK, res)
}

// GoogleLogin handles POST /login/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(r, &req); err != nil || req.IDToken == "" {
		writeMessage(w, http.StatusBadRequest, "id_token is required")
		return
	}
	res, err := h.accounts.GoogleLogin(r.Context(), req.IDToken)
	if err != nil {
		writeError(w, h.logger, "google login", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	h.setSessionCookie(w, res.Session.Token)
	writeJSON(w, status, res)
}

// Logout handles POST /logout. It ends the session and disconnects the
// websocket clients opened with it.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.accounts.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	if ac, ok := auth.FromContext(r.Context()); ok && ac.SessionID != 0 && h.hub != nil {
		h.hub.CloseSession(ac.SessionID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
