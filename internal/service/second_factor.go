package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/repository"
	"auth-core-service/internal/security"
)

const (
	backupCodePurpose = "totp_backup_code"
	smsCodePurpose    = "sms_verification"

	backupCodeCount = 10
	smsCodeDigits   = 6
)

// SecondFactorService applies the single-use / replay-counter discipline to
// secondary factors: backup codes and SMS codes consume once, WebAuthn sign
// counters must strictly increase.
type SecondFactorService struct {
	repo           repository.SecondFactorRepository
	pepper         string
	smsTTL         time.Duration
	smsMaxAttempts int
	now            func() time.Time
}

func NewSecondFactorService(repo repository.SecondFactorRepository, pepper string, smsTTL time.Duration, smsMaxAttempts int) *SecondFactorService {
	return &SecondFactorService{
		repo:           repo,
		pepper:         pepper,
		smsTTL:         smsTTL,
		smsMaxAttempts: smsMaxAttempts,
		now:            time.Now,
	}
}

// GenerateBackupCodes replaces nothing; it creates a fresh batch and returns
// the plaintexts once.
func (s *SecondFactorService) GenerateBackupCodes(ctx context.Context, userID uint) ([]string, error) {
	plaintexts := make([]string, 0, backupCodeCount)
	rows := make([]*domain.TotpBackupCode, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := security.NewTokenSecret()
		if err != nil {
			return nil, err
		}
		plaintexts = append(plaintexts, code)
		rows = append(rows, &domain.TotpBackupCode{
			UserID:   userID,
			CodeHash: security.HashTokenSecret(code, backupCodePurpose, s.pepper),
		})
	}
	if err := s.repo.CreateBackupCodes(rows); err != nil {
		return nil, err
	}
	return plaintexts, nil
}

// ConsumeBackupCode burns a backup code. A code that does not match an
// unused row fails; the caller cannot tell wrong from already-used, the
// audit trail can.
func (s *SecondFactorService) ConsumeBackupCode(ctx context.Context, userID uint, code string) (*domain.SecurityEvent, error) {
	hash := security.HashTokenSecret(code, backupCodePurpose, s.pepper)
	err := s.repo.ConsumeBackupCode(userID, hash, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrBackupCodeNotFound) {
			return &domain.SecurityEvent{
				UserID:    &userID,
				EventType: domain.EventSecondFactorReplayed,
				Severity:  domain.SeverityMedium,
				Metadata:  map[string]string{"factor": "backup_code"},
			}, ErrSecondFactorInvalid
		}
		return nil, err
	}
	return nil, nil
}

// VerifyAssertionCounter enforces the strictly-increasing WebAuthn sign
// counter. A stale counter means a cloned authenticator replayed an old
// assertion.
func (s *SecondFactorService) VerifyAssertionCounter(ctx context.Context, credentialID string, assertedCount uint32) (*domain.SecurityEvent, error) {
	cred, err := s.repo.FindWebauthnCredential(credentialID)
	if err != nil {
		if errors.Is(err, repository.ErrWebauthnCredentialNotFound) {
			return nil, ErrSecondFactorInvalid
		}
		return nil, err
	}
	err = s.repo.AdvanceSignCount(credentialID, cred.SignCount, assertedCount)
	if err != nil {
		if errors.Is(err, repository.ErrSignCountStale) {
			return &domain.SecurityEvent{
				UserID:    &cred.UserID,
				EventType: domain.EventSecondFactorReplayed,
				Severity:  domain.SeverityHigh,
				Metadata: map[string]string{
					"factor":         "webauthn",
					"credential_id":  credentialID,
					"stored_count":   strconv.FormatUint(uint64(cred.SignCount), 10),
					"asserted_count": strconv.FormatUint(uint64(assertedCount), 10),
				},
			}, ErrSecondFactorReplay
		}
		return nil, err
	}
	return nil, nil
}

// IssueSmsCode creates a short numeric code; delivery is the caller's
// concern.
func (s *SecondFactorService) IssueSmsCode(ctx context.Context, userID uint) (string, error) {
	code, err := security.NewNumericCode(smsCodeDigits)
	if err != nil {
		return "", err
	}
	row := &domain.SmsVerificationCode{
		UserID:    userID,
		CodeHash:  security.HashTokenSecret(code, smsCodePurpose, s.pepper),
		ExpiresAt: s.now().Add(s.smsTTL).UTC(),
	}
	if err := s.repo.CreateSmsCode(row); err != nil {
		return "", err
	}
	return code, nil
}

// VerifySmsCode checks the active code for the user, bounding attempts so a
// six-digit space cannot be walked.
func (s *SecondFactorService) VerifySmsCode(ctx context.Context, userID uint, code string) error {
	now := s.now()
	active, err := s.repo.FindActiveSmsCode(userID, now)
	if err != nil {
		if errors.Is(err, repository.ErrSmsCodeNotFound) {
			return ErrSecondFactorInvalid
		}
		return err
	}
	attempts, err := s.repo.IncrementSmsAttempts(active.ID)
	if err != nil {
		return err
	}
	if attempts > s.smsMaxAttempts {
		return ErrSecondFactorInvalid
	}
	if !security.ConstantTimeEquals(active.CodeHash, security.HashTokenSecret(code, smsCodePurpose, s.pepper)) {
		return ErrSecondFactorInvalid
	}
	if err := s.repo.ConsumeSmsCode(active.ID, now); err != nil {
		if errors.Is(err, repository.ErrSmsCodeNotFound) {
			return ErrSecondFactorInvalid
		}
		return err
	}
	return nil
}
