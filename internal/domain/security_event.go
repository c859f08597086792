package domain

import "time"

type EventSeverity string

const (
	SeverityLow      EventSeverity = "low"
	SeverityMedium   EventSeverity = "medium"
	SeverityHigh     EventSeverity = "high"
	SeverityCritical EventSeverity = "critical"
)

const (
	EventLoginFailed          = "login_failed"
	EventAccountLocked        = "account_locked"
	EventAccountUnlocked      = "account_unlocked"
	EventTokenReplaySuspected = "token_replay_suspected"
	EventTokenReuseDetected   = "token_reuse_detected"
	EventTokenFamilyRevoked   = "token_family_revoked"
	EventSecondFactorReplayed = "second_factor_replayed"
)

// SecurityEvent is one row of the append-only audit trail. Rows are never
// mutated or deleted by this core. UserID is nullable: some events precede
// identity resolution.
type SecurityEvent struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    *uint             `gorm:"index" json:"user_id,omitempty"`
	Email     string            `gorm:"size:255;index" json:"email"`
	EventType string            `gorm:"size:64;index;not null" json:"event_type"`
	Severity  EventSeverity     `gorm:"size:16;index;not null" json:"severity"`
	IPAddress string            `gorm:"size:64" json:"ip_address"`
	UserAgent string            `gorm:"size:512" json:"user_agent"`
	Metadata  map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}
