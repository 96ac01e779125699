package store

import (
	"context"
	"errors"
	"testing"
)

func TestUserCreate(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	ctx := context.Background()

	u, err := us.Create(ctx, " Alice@Example.com", "hash", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == "" {
		t.Error("expected non-empty ID")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}

	if _, err := us.Create(ctx, "alice@example.com", "other", ""); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate email err = %v, want ErrDuplicate", err)
	}
}

func TestUserGetByEmail(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	ctx := context.Background()

	created, _ := us.Create(ctx, "alice@example.com", "hash", "")

	u, err := us.GetByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Errorf("user = %+v, want %s", u, created.ID)
	}
	if u.PasswordHash != "hash" {
		t.Errorf("password hash = %q, want %q", u.PasswordHash, "hash")
	}

	none, _ := us.GetByEmail(ctx, "nobody@example.com")
	if none != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestUserGoogleSubject(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	ctx := context.Background()

	u, _ := us.Create(ctx, "alice@example.com", "hash", "")
	if err := us.LinkGoogleSubject(ctx, u.ID, "google-123"); err != nil {
		t.Fatalf("link: %v", err)
	}

	got, err := us.GetByGoogleSubject(ctx, "google-123")
	if err != nil {
		t.Fatalf("get by subject: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Errorf("user = %+v, want %s", got, u.ID)
	}

	// Two password-only users both carry an empty subject.
	if _, err := us.Create(ctx, "bob@example.com", "h", ""); err != nil {
		t.Fatalf("second user without subject: %v", err)
	}
	if _, err := us.Create(ctx, "carol@example.com", "", "google-123"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate subject err = %v, want ErrDuplicate", err)
	}
}

func TestUserDelete(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	ctx := context.Background()

	u, _ := us.Create(ctx, "alice@example.com", "hash", "")
	if err := us.Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := us.GetByID(ctx, u.ID)
	if got != nil {
		t.Error("expected user to be gone")
	}
}
