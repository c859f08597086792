package database

import (
	"auth-core-service/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.UserCredential{},
		&domain.LoginAttempt{},
		&domain.AuthToken{},
		&domain.RefreshTokenFamily{},
		&domain.RefreshToken{},
		&domain.SecurityEvent{},
		&domain.TotpBackupCode{},
		&domain.WebauthnCredential{},
		&domain.SmsVerificationCode{},
	)
}
