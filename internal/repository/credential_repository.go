package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCredentialNotFound = errors.New("credential not found")

type CredentialRepository interface {
	Create(c *domain.UserCredential) error
	FindByEmail(email string) (*domain.UserCredential, error)
	FindByUserID(userID uint) (*domain.UserCredential, error)
	AppendAttempt(a *domain.LoginAttempt) error
	ResetFailures(email string, now time.Time) error
	RegisterFailure(email string, lockFor func(failures int) *time.Time) (*domain.UserCredential, error)
	Unlock(email string) (bool, error)
	CleanupAttempts(olderThan time.Time) (int64, error)
}

type GormCredentialRepository struct{ db *gorm.DB }

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &GormCredentialRepository{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormCredentialRepository) Create(c *domain.UserCredential) error {
	c.Email = normalizeEmail(c.Email)
	err := r.db.Create(c).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "create", "success")
	return nil
}

func (r *GormCredentialRepository) FindByEmail(email string) (*domain.UserCredential, error) {
	var c domain.UserCredential
	err := r.db.Where("email = ?", normalizeEmail(email)).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_email", "not_found")
			return nil, ErrCredentialNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_email", "success")
	return &c, nil
}

func (r *GormCredentialRepository) FindByUserID(userID uint) (*domain.UserCredential, error) {
	var c domain.UserCredential
	err := r.db.Where("user_id = ?", userID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_user_id", "not_found")
			return nil, ErrCredentialNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_user_id", "success")
	return &c, nil
}

func (r *GormCredentialRepository) AppendAttempt(a *domain.LoginAttempt) error {
	a.Email = normalizeEmail(a.Email)
	err := r.db.Create(a).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_attempt", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "login_attempt", "append", "success")
	return nil
}

func (r *GormCredentialRepository) ResetFailures(email string, now time.Time) error {
	err := r.db.Model(&domain.UserCredential{}).
		Where("email = ?", normalizeEmail(email)).
		Updates(map[string]any{
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"last_login_at":         now.UTC(),
		}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "reset_failures", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "reset_failures", "success")
	return nil
}

// RegisterFailure increments the failure counter from a consistent read: the
// row is locked for the duration of the transaction so concurrent failures
// never lose increments. lockFor sees the post-increment count and returns a
// non-nil timestamp to lock the account.
func (r *GormCredentialRepository) RegisterFailure(email string, lockFor func(failures int) *time.Time) (*domain.UserCredential, error) {
	var out domain.UserCredential
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var c domain.UserCredential
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ?", normalizeEmail(email)).
			First(&c).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCredentialNotFound
			}
			return err
		}
		failures := c.FailedLoginAttempts + 1
		updates := map[string]any{"failed_login_attempts": failures}
		lockedUntil := lockFor(failures)
		if lockedUntil != nil {
			updates["locked_until"] = lockedUntil.UTC()
		}
		if err := tx.Model(&domain.UserCredential{}).
			Where("id = ?", c.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		c.FailedLoginAttempts = failures
		if lockedUntil != nil {
			t := lockedUntil.UTC()
			c.LockedUntil = &t
		}
		out = c
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "credential", "register_failure", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "credential", "register_failure", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "register_failure", "success")
	return &out, nil
}

// Unlock clears the lock and counter. Returns whether a locked row changed,
// so the caller emits the unlock event only when something actually unlocked.
func (r *GormCredentialRepository) Unlock(email string) (bool, error) {
	res := r.db.Model(&domain.UserCredential{}).
		Where("email = ? AND (locked_until IS NOT NULL OR failed_login_attempts > 0)", normalizeEmail(email)).
		Updates(map[string]any{
			"failed_login_attempts": 0,
			"locked_until":          nil,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "unlock", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "unlock", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormCredentialRepository) CleanupAttempts(olderThan time.Time) (int64, error) {
	res := r.db.Where("created_at <= ?", olderThan).Delete(&domain.LoginAttempt{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_attempt", "cleanup", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "login_attempt", "cleanup", "success")
	return res.RowsAffected, nil
}
