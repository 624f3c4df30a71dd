package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is an opaque single-use token stored server side.
// A used token presented again means it leaked, see Replayed.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil until exchanged or revoked
}

func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t RefreshToken) Replayed() bool {
	return t.UsedAt != nil
}

// IssuedToken is what the client gets back: the value and when it stops working
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenPair is returned on login, registration and refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
