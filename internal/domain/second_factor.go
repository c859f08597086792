package domain

import "time"

// TotpBackupCode is a single-use recovery code. Same discipline as one-time
// auth tokens: hash at rest, one-way UsedAt transition.
type TotpBackupCode struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	CodeHash  string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UsedAt    *time.Time `gorm:"index" json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WebauthnCredential stores a registered authenticator. SignCount must
// strictly increase on every successful assertion; a counter that fails to
// advance is a cloned-authenticator signal.
type WebauthnCredential struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	CredentialID string    `gorm:"size:255;uniqueIndex;not null" json:"credential_id"`
	PublicKey    []byte    `gorm:"not null" json:"-"`
	SignCount    uint32    `gorm:"not null;default:0" json:"sign_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SmsVerificationCode is a short-lived single-use code with a bounded number
// of verification attempts.
type SmsVerificationCode struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	CodeHash  string     `gorm:"size:128;index;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time `gorm:"index" json:"used_at,omitempty"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *SmsVerificationCode) Live(now time.Time) bool {
	return c.UsedAt == nil && c.ExpiresAt.After(now)
}
