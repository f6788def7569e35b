package domain

import "time"

// PasswordResetCode is a short numeric code issued for a password reset.
type PasswordResetCode struct {
	ID        string
	UserID    string
	Code      string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the code can still be redeemed at now.
func (c *PasswordResetCode) Usable(now time.Time) bool {
	return c.UsedAt == nil && now.Before(c.ExpiresAt)
}
