package repository

import (
	"context"
	"errors"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrBackupCodeNotFound         = errors.New("backup code not found")
	ErrWebauthnCredentialNotFound = errors.New("webauthn credential not found")
	ErrSignCountStale             = errors.New("webauthn sign count did not advance")
	ErrSmsCodeNotFound            = errors.New("sms code not found")
)

type SecondFactorRepository interface {
	CreateBackupCodes(codes []*domain.TotpBackupCode) error
	ConsumeBackupCode(userID uint, hash string, now time.Time) error
	CreateWebauthnCredential(c *domain.WebauthnCredential) error
	FindWebauthnCredential(credentialID string) (*domain.WebauthnCredential, error)
	AdvanceSignCount(credentialID string, from, to uint32) error
	CreateSmsCode(c *domain.SmsVerificationCode) error
	FindActiveSmsCode(userID uint, now time.Time) (*domain.SmsVerificationCode, error)
	IncrementSmsAttempts(id uint) (int, error)
	ConsumeSmsCode(id uint, now time.Time) error
}

type GormSecondFactorRepository struct{ db *gorm.DB }

func NewSecondFactorRepository(db *gorm.DB) SecondFactorRepository {
	return &GormSecondFactorRepository{db: db}
}

func (r *GormSecondFactorRepository) CreateBackupCodes(codes []*domain.TotpBackupCode) error {
	err := r.db.Create(codes).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "backup_code", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "backup_code", "create", "success")
	return nil
}

// ConsumeBackupCode marks the matching unused code used. Conditional on
// used_at IS NULL so a code replayed concurrently burns exactly once.
func (r *GormSecondFactorRepository) ConsumeBackupCode(userID uint, hash string, now time.Time) error {
	res := r.db.Model(&domain.TotpBackupCode{}).
		Where("user_id = ? AND code_hash = ? AND used_at IS NULL", userID, hash).
		Update("used_at", now.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "backup_code", "consume", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "backup_code", "consume", "conflict")
		return ErrBackupCodeNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "backup_code", "consume", "success")
	return nil
}

func (r *GormSecondFactorRepository) CreateWebauthnCredential(c *domain.WebauthnCredential) error {
	err := r.db.Create(c).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "webauthn_credential", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "webauthn_credential", "create", "success")
	return nil
}

func (r *GormSecondFactorRepository) FindWebauthnCredential(credentialID string) (*domain.WebauthnCredential, error) {
	var c domain.WebauthnCredential
	err := r.db.Where("credential_id = ?", credentialID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "webauthn_credential", "find", "not_found")
			return nil, ErrWebauthnCredentialNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "webauthn_credential", "find", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "webauthn_credential", "find", "success")
	return &c, nil
}

// AdvanceSignCount is a compare-and-swap on the stored counter. An assertion
// whose counter is not strictly greater than the stored value is rejected.
func (r *GormSecondFactorRepository) AdvanceSignCount(credentialID string, from, to uint32) error {
	if to <= from {
		return ErrSignCountStale
	}
	res := r.db.Model(&domain.WebauthnCredential{}).
		Where("credential_id = ? AND sign_count = ?", credentialID, from).
		Update("sign_count", to)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "webauthn_credential", "advance_sign_count", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "webauthn_credential", "advance_sign_count", "conflict")
		return ErrSignCountStale
	}
	observability.RecordRepositoryOperation(context.Background(), "webauthn_credential", "advance_sign_count", "success")
	return nil
}

func (r *GormSecondFactorRepository) CreateSmsCode(c *domain.SmsVerificationCode) error {
	err := r.db.Create(c).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "sms_code", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "sms_code", "create", "success")
	return nil
}

func (r *GormSecondFactorRepository) FindActiveSmsCode(userID uint, now time.Time) (*domain.SmsVerificationCode, error) {
	var c domain.SmsVerificationCode
	err := r.db.Where("user_id = ? AND used_at IS NULL AND expires_at > ?", userID, now).
		Order("created_at DESC").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "sms_code", "find_active", "not_found")
			return nil, ErrSmsCodeNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "sms_code", "find_active", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "sms_code", "find_active", "success")
	return &c, nil
}

// IncrementSmsAttempts bumps the attempt counter atomically and returns the
// new value from a locked read.
func (r *GormSecondFactorRepository) IncrementSmsAttempts(id uint) (int, error) {
	var attempts int
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.SmsVerificationCode{}).
			Where("id = ?", id).
			Update("attempts", gorm.Expr("attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSmsCodeNotFound
		}
		var c domain.SmsVerificationCode
		if err := tx.Select("attempts").Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		attempts = c.Attempts
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "sms_code", "increment_attempts", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "sms_code", "increment_attempts", "success")
	return attempts, nil
}

func (r *GormSecondFactorRepository) ConsumeSmsCode(id uint, now time.Time) error {
	res := r.db.Model(&domain.SmsVerificationCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", now.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "sms_code", "consume", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "sms_code", "consume", "conflict")
		return ErrSmsCodeNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "sms_code", "consume", "success")
	return nil
}
