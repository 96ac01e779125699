package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/streakforge/internal/auth"
	"github.com/dukerupert/streakforge/internal/database"
	"github.com/dukerupert/streakforge/internal/store"
)

func setupAuthMiddlewareDB(t *testing.T) (*store.SessionStore, *store.UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewSessionStore(db), store.NewUserStore(db)
}

var testTokens = auth.NewTokens("middleware-test-secret", time.Hour)

func unreachable(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func captureAuth(got *auth.AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if ok {
			*got = ac
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthNoCredentials(t *testing.T) {
	ss, _ := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest("GET", "/api/habits", nil)
	rec := httptest.NewRecorder()
	RequireAuth(ss, testTokens)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequireAuthInvalidCookie(t *testing.T) {
	ss, _ := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	RequireAuth(ss, testTokens)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	ctx := context.Background()

	u, err := us.Create(ctx, "alice@example.com", "hash", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := ss.Create(ctx, u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var gotAC auth.AuthContext
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	RequireAuth(ss, testTokens)(captureAuth(&gotAC)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAC.UserID != u.ID {
		t.Errorf("UserID = %q, want %q", gotAC.UserID, u.ID)
	}
	if gotAC.SessionID != sess.ID {
		t.Errorf("SessionID = %d, want %d", gotAC.SessionID, sess.ID)
	}
	if gotAC.Method != auth.MethodSession {
		t.Errorf("Method = %q, want %q", gotAC.Method, auth.MethodSession)
	}
}

func TestRequireAuthBearer(t *testing.T) {
	ss, _ := setupAuthMiddlewareDB(t)
	token, err := testTokens.Issue("u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var gotAC auth.AuthContext
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	RequireAuth(ss, testTokens)(captureAuth(&gotAC)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAC.UserID != "u1" || gotAC.Email != "alice@example.com" {
		t.Errorf("AuthContext = %+v", gotAC)
	}
	if gotAC.Method != auth.MethodToken {
		t.Errorf("Method = %q, want %q", gotAC.Method, auth.MethodToken)
	}
}

func TestRequireAuthBadBearer(t *testing.T) {
	ss, _ := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	RequireAuth(ss, testTokens)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthWebsocketQueryToken(t *testing.T) {
	ss, _ := setupAuthMiddlewareDB(t)
	token, _ := testTokens.Issue("u1", "alice@example.com")

	var gotAC auth.AuthContext
	req := httptest.NewRequest("GET", "/ws?access_token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	RequireAuth(ss, testTokens)(captureAuth(&gotAC)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || gotAC.UserID != "u1" {
		t.Errorf("status = %d, user = %q", rec.Code, gotAC.UserID)
	}

	// Plain requests ignore the query parameter.
	req = httptest.NewRequest("GET", "/api/habits?access_token="+token, nil)
	rec = httptest.NewRecorder()
	RequireAuth(ss, testTokens)(unreachable(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
