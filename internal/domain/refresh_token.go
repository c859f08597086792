package domain

import "time"

// FamilyState is the explicit lifecycle state of a refresh-token family.
// Revoked is terminal: a revoked family can never issue or accept a token.
type FamilyState string

const (
	FamilyActive  FamilyState = "active"
	FamilyRevoked FamilyState = "revoked"
)

// RefreshTokenState is the explicit lifecycle state of one rotating token
// within a family. At most one token per family is Current at any time.
type RefreshTokenState string

const (
	RefreshTokenCurrent RefreshTokenState = "current"
	RefreshTokenRotated RefreshTokenState = "rotated"
)

const (
	RevokeReasonLogout        = "logout"
	RevokeReasonReuseDetected = "reuse_detected"
	RevokeReasonAdmin         = "admin_revoked"
)

// RefreshTokenFamily is one login session chain. All refresh tokens ever
// issued within the session share its FamilyID. Families are never deleted;
// they are retained for forensic replay windows.
type RefreshTokenFamily struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	FamilyID     string     `gorm:"size:64;uniqueIndex;not null" json:"family_id"`
	UserID       uint       `gorm:"index;not null" json:"user_id"`
	IPAddress    string     `gorm:"size:64" json:"ip_address"`
	UserAgent    string     `gorm:"size:512" json:"user_agent"`
	RevokedAt    *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokeReason *string    `gorm:"size:64" json:"revoke_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (f *RefreshTokenFamily) State() FamilyState {
	if f.RevokedAt != nil {
		return FamilyRevoked
	}
	return FamilyActive
}

// RefreshToken is one rotating token within a family. Every prior token in
// the chain has ConsumedAt set and points to its successor.
type RefreshToken struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	FamilyID            string     `gorm:"size:64;index;not null" json:"family_id"`
	UserID              uint       `gorm:"index;not null" json:"user_id"`
	TokenHash           string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt           time.Time  `gorm:"index;not null" json:"expires_at"`
	ConsumedAt          *time.Time `gorm:"index" json:"consumed_at,omitempty"`
	SupersededByTokenID *uint      `gorm:"index" json:"superseded_by_token_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (t *RefreshToken) State() RefreshTokenState {
	if t.ConsumedAt != nil {
		return RefreshTokenRotated
	}
	return RefreshTokenCurrent
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
