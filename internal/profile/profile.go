// Package profile edits the user-facing parts of a profile: display name,
// photo and daily reminder settings.
package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/dukerupert/streakforge/internal/apperr"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/reminder"
	"github.com/dukerupert/streakforge/internal/store"
	"github.com/dukerupert/streakforge/internal/websocket"
)

const maxDisplayName = 60

type Store interface {
	GetProfile(ctx context.Context, uid string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, uid string, u model.ProfileUpdate) error
}

type Uploader interface {
	Configured() bool
	UploadProfilePhoto(ctx context.Context, uid string, r io.Reader, size int64, contentType string) (string, error)
}

type Publisher interface {
	Publish(userID string, msg websocket.Message)
}

type Service struct {
	store    Store
	uploader Uploader
	hub      Publisher
	logger   *slog.Logger
}

// NewService creates a Service. uploader and hub may be nil.
func NewService(st Store, uploader Uploader, hub Publisher, logger *slog.Logger) *Service {
	return &Service{store: st, uploader: uploader, hub: hub, logger: logger.With("component", "profile")}
}

func (s *Service) Get(ctx context.Context, uid string) (*model.Profile, error) {
	p, err := s.store.GetProfile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("profile not found")
	}
	return p, nil
}

func (s *Service) UpdateDisplayName(ctx context.Context, uid, name string) (*model.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("display name is required")
	}
	if len([]rune(name)) > maxDisplayName {
		return nil, apperr.Validation("display name must be at most %d characters", maxDisplayName)
	}
	return s.update(ctx, uid, model.ProfileUpdate{DisplayName: &name}, map[string]any{"display_name": name})
}

// UploadPhoto stores the picture and points the profile at it.
func (s *Service) UploadPhoto(ctx context.Context, uid string, r io.Reader, size int64, contentType string) (*model.Profile, error) {
	if s.uploader == nil || !s.uploader.Configured() {
		return nil, apperr.Forbidden("photo uploads are not enabled")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperr.Validation("photo must be an image")
	}
	url, err := s.uploader.UploadProfilePhoto(ctx, uid, r, size, contentType)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, uid, model.ProfileUpdate{PhotoURL: &url}, map[string]any{"photo_url": url})
}

// Reminders is a partial change to the daily reminder settings; nil fields
// are left as they are.
type Reminders struct {
	Enabled *bool
	// Time is "HH:MM", or "" to clear the saved time.
	Time *string
}

// SetReminders applies r. Reminders enabled without a time never fire.
func (s *Service) SetReminders(ctx context.Context, uid string, r Reminders) (*model.Profile, error) {
	if r.Enabled == nil && r.Time == nil {
		return nil, apperr.Validation("nothing to update")
	}

	u := model.ProfileUpdate{RemindersEnabled: r.Enabled}
	extra := map[string]any{}
	if r.Enabled != nil {
		extra["reminders_enabled"] = *r.Enabled
	}
	if r.Time != nil {
		hhmm := strings.TrimSpace(*r.Time)
		if hhmm != "" {
			if _, _, err := reminder.ParseTime(hhmm); err != nil {
				return nil, apperr.Validation("reminder time must be HH:MM")
			}
		}
		u.ReminderTime = &hhmm
		extra["reminder_time"] = hhmm
	}
	return s.update(ctx, uid, u, extra)
}

func (s *Service) update(ctx context.Context, uid string, u model.ProfileUpdate, extra map[string]any) (*model.Profile, error) {
	err := s.store.UpdateProfile(ctx, uid, u)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("profile not found")
	}
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.Publish(uid, websocket.NewMessage("profile", "updated", uid, extra))
	}
	s.logger.Debug("profile updated", "uid", uid)
	return s.Get(ctx, uid)
}
