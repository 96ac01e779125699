package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/streakforge/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.GoogleSubject, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, email, password_hash, google_subject, created_at`

// Create inserts a user. Email is stored lower-cased; ErrDuplicate means it is taken.
func (s *UserStore) Create(ctx context.Context, email, passwordHash, googleSubject string) (*model.User, error) {
	u := model.User{
		ID:            uuid.NewString(),
		Email:         normalizeEmail(email),
		PasswordHash:  passwordHash,
		GoogleSubject: googleSubject,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.GoogleSubject, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.getOne(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getOne(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, normalizeEmail(email))
}

func (s *UserStore) GetByGoogleSubject(ctx context.Context, subject string) (*model.User, error) {
	if subject == "" {
		return nil, nil
	}
	return s.getOne(ctx, `SELECT `+userCols+` FROM users WHERE google_subject = ?`, subject)
}

// LinkGoogleSubject attaches a Google account to an existing user.
func (s *UserStore) LinkGoogleSubject(ctx context.Context, id, subject string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET google_subject = ? WHERE id = ?`, subject, id)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("link google subject: %w", err)
	}
	return requireOneRow(result)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
