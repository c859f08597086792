package domain

import "time"

type AuthTokenType string

const (
	AuthTokenPasswordReset     AuthTokenType = "password_reset"
	AuthTokenEmailVerification AuthTokenType = "email_verification"
	AuthTokenEmailChange       AuthTokenType = "email_change"
	AuthTokenEmailChangeRevert AuthTokenType = "email_change_revert"
	AuthTokenMagicLink         AuthTokenType = "magic_link"
)

// AuthTokenState is the explicit lifecycle state of a one-time token.
// Consumption and expiry are independent terminal conditions; either one
// invalidates the token permanently.
type AuthTokenState string

const (
	AuthTokenLive     AuthTokenState = "live"
	AuthTokenConsumed AuthTokenState = "consumed"
	AuthTokenExpired  AuthTokenState = "expired"
)

// AuthToken is a single-use, time-bounded secret row. The plaintext secret
// is never persisted; only its purpose-keyed hash.
type AuthToken struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Type      AuthTokenType     `gorm:"size:32;index:idx_auth_tokens_type_email;not null" json:"type"`
	UserID    *uint             `gorm:"index" json:"user_id,omitempty"`
	Email     string            `gorm:"size:255;index:idx_auth_tokens_type_email" json:"email"`
	TokenHash string            `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time         `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time        `gorm:"index" json:"used_at,omitempty"`
	IPAddress string            `gorm:"size:64" json:"ip_address"`
	UserAgent string            `gorm:"size:512" json:"user_agent"`
	Metadata  map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// State reports the token's lifecycle state at the given instant.
// A consumed token is terminal even if its expiry has not passed.
func (t *AuthToken) State(now time.Time) AuthTokenState {
	if t.UsedAt != nil {
		return AuthTokenConsumed
	}
	if !t.ExpiresAt.After(now) {
		return AuthTokenExpired
	}
	return AuthTokenLive
}

func ValidAuthTokenType(v AuthTokenType) bool {
	switch v {
	case AuthTokenPasswordReset, AuthTokenEmailVerification, AuthTokenEmailChange,
		AuthTokenEmailChangeRevert, AuthTokenMagicLink:
		return true
	}
	return false
}
