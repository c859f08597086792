package domain

import "time"

// LoginAttempt is the append-only attempt log. Rows are never updated after
// insert; the trail is unconditional, including successful logins.
type LoginAttempt struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Email         string    `gorm:"size:255;index;not null" json:"email"`
	IPAddress     string    `gorm:"size:64" json:"ip_address"`
	UserAgent     string    `gorm:"size:512" json:"user_agent"`
	Success       bool      `gorm:"index" json:"success"`
	FailureReason *string   `gorm:"size:64" json:"failure_reason,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// UserCredential carries per-identity lockout state. LockedUntil in the past
// is equivalent to unlocked; expiry is evaluated lazily at check time.
type UserCredential struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UserID              uint       `gorm:"index;not null" json:"user_id"`
	Email               string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash        string     `gorm:"size:255" json:"-"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"failed_login_attempts"`
	LockedUntil         *time.Time `gorm:"index" json:"locked_until,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (c *UserCredential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}
