package model

import "time"

// User is a sign-in identity. Either PasswordHash or GoogleSubject is set.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	GoogleSubject string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}
