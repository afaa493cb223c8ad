package core

import "time"

// User is the profile document created on first sign-in and touched on every
// later one. The password hash lives here because the store doubles as the
// identity backend.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    time.Time
}
