package models

import "time"

// RefreshToken is the server-side record backing a refresh credential.
// The credential is valid only while this record exists and has not expired.
type RefreshToken struct {
	ID        string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the record's expiry is at or before now.
func (r *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
