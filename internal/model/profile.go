package model

import "time"

type Profile struct {
	UID              string    `json:"uid" bson:"_id"`
	Email            string    `json:"email" bson:"email"`
	DisplayName      string    `json:"display_name" bson:"displayName"`
	PhotoURL         string    `json:"photo_url" bson:"photoURL"`
	HighestMaxStreak int       `json:"highest_max_streak" bson:"highestMaxStreak"`
	RemindersEnabled bool      `json:"reminders_enabled" bson:"remindersEnabled"`
	ReminderTime     *string   `json:"reminder_time" bson:"reminderTime"`
	CreatedAt        time.Time `json:"created_at" bson:"createdAt"`
}

// ProfileUpdate is a partial update; nil fields are left unchanged.
// A non-nil ReminderTime pointing at "" clears the reminder time.
type ProfileUpdate struct {
	DisplayName      *string
	PhotoURL         *string
	HighestMaxStreak *int
	RemindersEnabled *bool
	ReminderTime     *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil && u.PhotoURL == nil && u.HighestMaxStreak == nil &&
		u.RemindersEnabled == nil && u.ReminderTime == nil
}
