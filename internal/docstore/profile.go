package docstore

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/store"
)

func (s *Store) CreateProfile(ctx context.Context, p model.Profile) error {
	p.Email = strings.TrimSpace(p.Email)
	if p.ReminderTime != nil && *p.ReminderTime == "" {
		p.ReminderTime = nil
	}
	_, err := s.profiles.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, uid string) (*model.Profile, error) {
	p, err := findOne[model.Profile](ctx, s.profiles, bson.M{"_id": uid})
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// FindProfileByEmail matches the trimmed email case-insensitively.
func (s *Store) FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	p, err := findOne[model.Profile](ctx, s.profiles,
		bson.M{"email": strings.TrimSpace(email)},
		options.FindOne().SetCollation(emailCollation),
	)
	if err != nil {
		return nil, fmt.Errorf("find profile by email: %w", err)
	}
	return p, nil
}

// UpdateProfile applies the non-nil fields of u.
func (s *Store) UpdateProfile(ctx context.Context, uid string, u model.ProfileUpdate) error {
	if u.Empty() {
		return nil
	}

	set := bson.M{}
	if u.DisplayName != nil {
		set["displayName"] = *u.DisplayName
	}
	if u.PhotoURL != nil {
		set["photoURL"] = *u.PhotoURL
	}
	if u.HighestMaxStreak != nil {
		set["highestMaxStreak"] = *u.HighestMaxStreak
	}
	if u.RemindersEnabled != nil {
		set["remindersEnabled"] = *u.RemindersEnabled
	}
	if u.ReminderTime != nil {
		if *u.ReminderTime == "" {
			set["reminderTime"] = nil
		} else {
			set["reminderTime"] = *u.ReminderTime
		}
	}

	res, err := s.profiles.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListReminderProfiles returns profiles with reminders on and a time set.
func (s *Store) ListReminderProfiles(ctx context.Context) ([]model.Profile, error) {
	out, err := findAll[model.Profile](ctx, s.profiles,
		bson.M{"remindersEnabled": true, "reminderTime": bson.M{"$ne": nil}})
	if err != nil {
		return nil, fmt.Errorf("list reminder profiles: %w", err)
	}
	return out, nil
}
