package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/streakforge/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var reminders int
	var reminderTime sql.NullString
	err := scanner.Scan(&p.UID, &p.Email, &p.DisplayName, &p.PhotoURL, &p.HighestMaxStreak, &reminders, &reminderTime, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.RemindersEnabled = reminders != 0
	if reminderTime.Valid {
		p.ReminderTime = &reminderTime.String
	}
	return &p, nil
}

const profileCols = `uid, email, display_name, photo_url, highest_max_streak, reminders_enabled, reminder_time, created_at`

// CreateProfile inserts p, returning ErrDuplicate if the user already has a profile.
func (s *ProfileStore) CreateProfile(ctx context.Context, p model.Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (uid, email, display_name, photo_url, highest_max_streak, reminders_enabled, reminder_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UID, p.Email, p.DisplayName, p.PhotoURL, p.HighestMaxStreak, boolInt(p.RemindersEnabled), nullString(p.ReminderTime), createdAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *ProfileStore) GetProfile(ctx context.Context, uid string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE uid = ?`, uid)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// FindProfileByEmail matches email case-insensitively.
func (s *ProfileStore) FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE email = ? COLLATE NOCASE ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(email),
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile by email: %w", err)
	}
	return p, nil
}

// UpdateProfile applies the non-nil fields of u.
func (s *ProfileStore) UpdateProfile(ctx context.Context, uid string, u model.ProfileUpdate) error {
	if u.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if u.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *u.DisplayName)
	}
	if u.PhotoURL != nil {
		sets = append(sets, "photo_url = ?")
		args = append(args, *u.PhotoURL)
	}
	if u.HighestMaxStreak != nil {
		sets = append(sets, "highest_max_streak = ?")
		args = append(args, *u.HighestMaxStreak)
	}
	if u.RemindersEnabled != nil {
		sets = append(sets, "reminders_enabled = ?")
		args = append(args, boolInt(*u.RemindersEnabled))
	}
	if u.ReminderTime != nil {
		sets = append(sets, "reminder_time = ?")
		if *u.ReminderTime == "" {
			args = append(args, nil)
		} else {
			args = append(args, *u.ReminderTime)
		}
	}
	args = append(args, uid)

	result, err := s.db.ExecContext(ctx, `UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE uid = ?`, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireOneRow(result)
}

// ListReminderProfiles returns profiles with reminders on and a time set.
func (s *ProfileStore) ListReminderProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE reminders_enabled = 1 AND reminder_time IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
