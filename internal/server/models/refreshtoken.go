package models

import "time"

// RefreshToken is the stored reference of an issued refresh token. The token
// itself is never persisted, only its SHA-256 hash.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
