package directory

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("directory: user not found")

// Profile is the slice of a user record the call core needs: whether the
// user exists, what to call them, and whether invites may be pushed.
type Profile struct {
	UserID               string `json:"user_id" db:"user_id"`
	DisplayName          string `json:"display_name" db:"display_name"`
	NotificationsEnabled bool   `json:"notifications_enabled" db:"notifications_enabled"`
}

// Repository is the read-only lookup contract. User registration and
// profile mutation belong to a separate service.
type Repository interface {
	Lookup(ctx context.Context, userID string) (Profile, error)
}
