package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/streakforge/internal/auth"
	"github.com/dukerupert/streakforge/internal/model"
)

// SessionLookup resolves a session cookie value.
type SessionLookup interface {
	GetByToken(ctx context.Context, token string) (*model.Session, error)
}

// RequireAuth accepts either the session cookie or an "Authorization: Bearer"
// JWT and populates AuthContext. Websocket upgrades may pass the JWT as the
// access_token query parameter since browsers cannot set headers on them.
func RequireAuth(sessions SessionLookup, tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearer := bearerToken(r); bearer != "" {
				claims, err := tokens.Verify(bearer)
				if err != nil {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				ac := auth.AuthContext{UserID: claims.UserID, Email: claims.Email, Method: auth.MethodToken}
				next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
				return
			}

			cookie, err := r.Cookie(auth.SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			sess, err := sessions.GetByToken(r.Context(), cookie.Value)
			if err != nil || sess == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ac := auth.AuthContext{
				UserID:    sess.UserID,
				SessionID: sess.ID,
				Method:    auth.MethodSession,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
