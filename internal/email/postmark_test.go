package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/streakforge/internal/model"
)

var (
	alice = &model.Profile{UID: "alice", Email: "alice@example.com", DisplayName: "Alice <3"}
	bob   = &model.Profile{UID: "bob", Email: "bob@example.com", DisplayName: "Bob"}
)

func TestFriendRequestReceived(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", "https://streakforge.test",
		WithHTTPClient(&http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}))

	if err := client.FriendRequestReceived(context.Background(), alice, bob); err != nil {
		t.Fatalf("send notice: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "bob@example.com" {
		t.Errorf("To = %q, want %q", received.To, "bob@example.com")
	}
	if received.From != "noreply@example.com" {
		t.Errorf("From = %q, want %q", received.From, "noreply@example.com")
	}
	if !strings.Contains(received.Subject, "Alice <3") {
		t.Errorf("Subject = %q, want sender name", received.Subject)
	}
	if !strings.Contains(received.TextBody, "https://streakforge.test/friends") {
		t.Errorf("TextBody missing link: %q", received.TextBody)
	}
	if strings.Contains(received.HtmlBody, "<3") {
		t.Errorf("HtmlBody not escaped: %q", received.HtmlBody)
	}
}

func TestFriendRequestFallsBackToEmail(t *testing.T) {
	var received postmarkEmail
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer server.Close()

	client := NewClient("tok", "noreply@example.com", "https://streakforge.test",
		WithHTTPClient(&http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}))

	anon := &model.Profile{UID: "x", Email: "x@example.com"}
	if err := client.FriendRequestReceived(context.Background(), anon, bob); err != nil {
		t.Fatalf("send notice: %v", err)
	}
	if !strings.HasPrefix(received.Subject, "x@example.com") {
		t.Errorf("Subject = %q, want email as name", received.Subject)
	}
}

func TestSendNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@example.com", "https://streakforge.test")
	if err := client.FriendRequestReceived(context.Background(), alice, bob); err == nil {
		t.Error("expected error when not configured")
	}
}

func TestSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient("tok", "noreply@example.com", "https://streakforge.test",
		WithHTTPClient(&http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}))

	err := client.FriendRequestReceived(context.Background(), alice, bob)
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Errorf("err = %v, want postmark status error", err)
	}
}

func TestConfigured(t *testing.T) {
	if NewClient("", "a@b.c", "").Configured() {
		t.Error("expected Configured() = false with empty token")
	}
	if !NewClient("tok", "a@b.c", "").Configured() {
		t.Error("expected Configured() = true with token")
	}
}

// rewriteTransport redirects all requests to a test server URL.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.target[len("http://"):]
	return t.base.RoundTrip(req)
}
