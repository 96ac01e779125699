package model

import (
	"time"

	"github.com/dukerupert/streakforge/internal/datekey"
)

type Habit struct {
	ID            string    `json:"id" bson:"_id"`
	OwnerID       string    `json:"owner_id" bson:"ownerId"`
	Name          string    `json:"name" bson:"name"`
	CurrentStreak int       `json:"current_streak" bson:"currentStreak"`
	MaxStreak     int       `json:"max_streak" bson:"maxStreak"`
	Order         int       `json:"order" bson:"order"`
	Version       int64     `json:"version" bson:"version"`
	CreatedAt     time.Time `json:"created_at" bson:"createdAt"`
}

// NewHabit holds the fields supplied when a habit is created.
type NewHabit struct {
	Name      string
	Order     int
	CreatedAt time.Time
}

// Aggregate is the derived streak state persisted on a habit.
type Aggregate struct {
	CurrentStreak int `json:"current_streak"`
	MaxStreak     int `json:"max_streak"`
}

// Completion marks a habit as done on one calendar day.
type Completion struct {
	ID        string      `json:"id" bson:"_id"`
	OwnerID   string      `json:"owner_id" bson:"ownerId"`
	HabitID   string      `json:"habit_id" bson:"habitId"`
	Date      datekey.Key `json:"date" bson:"date"`
	CreatedAt time.Time   `json:"created_at" bson:"createdAt"`
}

type NewCompletion struct {
	HabitID string
	Date    datekey.Key
}
