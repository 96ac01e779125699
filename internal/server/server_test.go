package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/streakforge/internal/config"
	"github.com/dukerupert/streakforge/internal/database"
	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/social"
	"github.com/dukerupert/streakforge/internal/store"
	"github.com/dukerupert/streakforge/internal/tracker"
)

var _ Documents = (*store.Documents)(nil)

func testServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret-of-sufficient-length"
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(Deps{
		Config: cfg,
		DB:     db,
		Docs:   store.NewDocuments(db),
		Clock:  datekey.NewFixedClock(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), time.UTC),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func register(t *testing.T, base, email, name string) *client {
	t.Helper()
	c := &client{t: t, base: base}
	resp := c.do("POST", "/register", map[string]string{
		"email":        email,
		"password":     "hunter22",
		"display_name": name,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == "streakforge_session" {
			cookie = ck
		}
	}
	require.NotNil(t, cookie, "session cookie not set")

	body := decode[struct {
		Token string      `json:"token"`
		User  *model.User `json:"user"`
	}](t, resp)
	require.NotEmpty(t, body.Token)
	c.token = body.Token
	return c
}

func TestHealth(t *testing.T) {
	ts := testServer(t, nil)
	c := &client{t: t, base: ts.URL}

	resp := c.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["ws_clients"])
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts := testServer(t, nil)
	c := &client{t: t, base: ts.URL}

	for _, path := range []string{"/api/snapshot", "/api/habits", "/api/leaderboard", "/api/profile"} {
		resp := c.do("GET", path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	c.token = "not-a-token"
	resp := c.do("GET", "/api/habits", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHabitLifecycle(t *testing.T) {
	ts := testServer(t, nil)
	c := register(t, ts.URL, "alice@example.com", "Alice")

	resp := c.do("POST", "/api/habits", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.do("POST", "/api/habits", map[string]string{"name": "Read"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	habit := decode[model.Habit](t, resp)
	assert.Equal(t, "Read", habit.Name)

	resp = c.do("POST", "/api/habits/"+habit.ID+"/toggle", map[string]string{"date": "2026-10-15"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[tracker.ToggleResult](t, resp)
	assert.True(t, res.Done)
	assert.Equal(t, 1, res.Habit.CurrentStreak)

	resp = c.do("POST", "/api/habits/"+habit.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decode[tracker.ToggleResult](t, resp)
	assert.Equal(t, datekey.Key("2026-10-16"), res.Date)
	assert.Equal(t, 2, res.Habit.CurrentStreak)
	assert.Equal(t, 2, res.HighestMaxStreak)

	resp = c.do("POST", "/api/habits/"+habit.ID+"/toggle", map[string]string{"date": "2026-10-17"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.do("GET", "/api/snapshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[struct {
		Profile     *model.Profile     `json:"profile"`
		Habits      []model.Habit      `json:"habits"`
		Completions []model.Completion `json:"completions"`
		Today       datekey.Key        `json:"today"`
		DoneToday   map[string]bool    `json:"done_today"`
	}](t, resp)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "Alice", snap.Profile.DisplayName)
	assert.Equal(t, 2, snap.Profile.HighestMaxStreak)
	assert.Len(t, snap.Habits, 1)
	assert.Len(t, snap.Completions, 2)
	assert.Equal(t, datekey.Key("2026-10-16"), snap.Today)
	assert.True(t, snap.DoneToday[habit.ID])

	resp = c.do("PUT", "/api/habits/"+habit.ID, map[string]string{"name": "Read 20 pages"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Read 20 pages", decode[model.Habit](t, resp).Name)

	resp = c.do("DELETE", "/api/habits/"+habit.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = c.do("GET", "/api/completions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]model.Completion](t, resp))

	resp = c.do("DELETE", "/api/habits/"+habit.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHabitsAreScopedToOwner(t *testing.T) {
	ts := testServer(t, nil)
	alice := register(t, ts.URL, "alice@example.com", "Alice")
	bob := register(t, ts.URL, "bob@example.com", "Bob")

	resp := alice.do("POST", "/api/habits", map[string]string{"name": "Run"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	habit := decode[model.Habit](t, resp)

	resp = bob.do("POST", "/api/habits/"+habit.ID+"/toggle", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = bob.do("GET", "/api/habits", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]model.Habit](t, resp))
}

func TestFriendsAndLeaderboard(t *testing.T) {
	ts := testServer(t, nil)
	alice := register(t, ts.URL, "alice@example.com", "Alice")
	bob := register(t, ts.URL, "bob@example.com", "Bob")

	resp := bob.do("POST", "/api/habits", map[string]string{"name": "Stretch"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	habit := decode[model.Habit](t, resp)
	resp = bob.do("POST", "/api/habits/"+habit.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = alice.do("POST", "/api/friends/requests", map[string]string{"email": "BOB@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	fr := decode[model.FriendRequest](t, resp)
	assert.Equal(t, model.FriendRequestPending, fr.Status)

	resp = alice.do("POST", "/api/friends/requests", map[string]string{"email": "bob@example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = alice.do("POST", "/api/friends/requests", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = alice.do("POST", "/api/friends/requests/"+fr.ID+"/accept", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = bob.do("POST", "/api/friends/requests/"+fr.ID+"/accept", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = alice.do("GET", "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]social.Entry](t, resp)
	require.Len(t, entries, 2)
	assert.Equal(t, "Bob", entries[0].DisplayName)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 1, entries[0].HighestMaxStreak)
	assert.True(t, entries[1].IsViewer)

	resp = bob.do("DELETE", "/api/friends/requests/"+fr.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = alice.do("GET", "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]social.Entry](t, resp), 1)
}

func TestLoginRateLimited(t *testing.T) {
	ts := testServer(t, func(c *config.Config) { c.Auth.LoginPerMinute = 2 })
	register(t, ts.URL, "alice@example.com", "Alice")
	c := &client{t: t, base: ts.URL}

	creds := map[string]string{"email": "alice@example.com", "password": "wrong-password"}
	assert.Equal(t, http.StatusUnauthorized, c.do("POST", "/login", creds).StatusCode)
	resp := c.do("POST", "/login", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestLogoutEndsSession(t *testing.T) {
	ts := testServer(t, nil)
	register(t, ts.URL, "alice@example.com", "Alice")

	c := &client{t: t, base: ts.URL}
	resp := c.do("POST", "/login", map[string]string{"email": "alice@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == "streakforge_session" {
			session = ck
		}
	}
	require.NotNil(t, session)

	withCookie := func(method, path string) int {
		req, err := http.NewRequest(method, ts.URL+path, nil)
		require.NoError(t, err)
		req.AddCookie(session)
		r, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		r.Body.Close()
		return r.StatusCode
	}

	assert.Equal(t, http.StatusOK, withCookie("GET", "/api/profile"))
	assert.Equal(t, http.StatusNoContent, withCookie("POST", "/logout"))
	assert.Equal(t, http.StatusUnauthorized, withCookie("GET", "/api/profile"))
}

func TestReminderSettingsArePartial(t *testing.T) {
	ts := testServer(t, nil)
	c := register(t, ts.URL, "alice@example.com", "Alice")

	put := func(body map[string]any) model.Profile {
		t.Helper()
		resp := c.do("PUT", "/api/profile/reminders", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return decode[model.Profile](t, resp)
	}

	p := put(map[string]any{"time": "08:30"})
	assert.False(t, p.RemindersEnabled)
	require.NotNil(t, p.ReminderTime)

	p = put(map[string]any{"enabled": true})
	assert.True(t, p.RemindersEnabled)
	require.NotNil(t, p.ReminderTime, "enabling kept the saved time")
	assert.Equal(t, "08:30", *p.ReminderTime)

	p = put(map[string]any{"time": nil})
	assert.True(t, p.RemindersEnabled)
	assert.Nil(t, p.ReminderTime)

	resp := c.do("PUT", "/api/profile/reminders", map[string]any{"time": 830})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = c.do("PUT", "/api/profile/reminders", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
