package repository

import (
	"context"
	"errors"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRefreshTokenNotFound   = errors.New("refresh token not found")
	ErrRefreshFamilyNotFound  = errors.New("refresh token family not found")
	ErrRefreshTokenNotCurrent = errors.New("refresh token already rotated")
)

type RefreshTokenRepository interface {
	CreateFamily(f *domain.RefreshTokenFamily, first *domain.RefreshToken) error
	FindTokenByHash(hash string) (*domain.RefreshToken, error)
	FindFamily(familyID string) (*domain.RefreshTokenFamily, error)
	Rotate(tokenID uint, successor *domain.RefreshToken, now time.Time) (*domain.RefreshToken, error)
	RevokeFamily(familyID, reason string, now time.Time) (bool, error)
	CleanupExpiredTokens(olderThan time.Time) (int64, error)
}

type GormRefreshTokenRepository struct{ db *gorm.DB }

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &GormRefreshTokenRepository{db: db}
}

func (r *GormRefreshTokenRepository) CreateFamily(f *domain.RefreshTokenFamily, first *domain.RefreshToken) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(f).Error; err != nil {
			return err
		}
		first.FamilyID = f.FamilyID
		first.UserID = f.UserID
		return tx.Create(first).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "refresh_family", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_family", "create", "success")
	return nil
}

func (r *GormRefreshTokenRepository) FindTokenByHash(hash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.Where("token_hash = ?", hash).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_token", "find_by_hash", "not_found")
			return nil, ErrRefreshTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "refresh_token", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_token", "find_by_hash", "success")
	return &t, nil
}

func (r *GormRefreshTokenRepository) FindFamily(familyID string) (*domain.RefreshTokenFamily, error) {
	var f domain.RefreshTokenFamily
	err := r.db.Where("family_id = ?", familyID).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_family", "find", "not_found")
			return nil, ErrRefreshFamilyNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "refresh_family", "find", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_family", "find", "success")
	return &f, nil
}

// Rotate consumes the current token and creates its successor in one
// transaction. The conditional update guarded on consumed_at IS NULL is the
// linearization point: of two concurrent rotations exactly one affects a row,
// and the loser gets ErrRefreshTokenNotCurrent so the caller can route it to
// reuse detection rather than silently ignoring it.
func (r *GormRefreshTokenRepository) Rotate(tokenID uint, successor *domain.RefreshToken, now time.Time) (*domain.RefreshToken, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.RefreshToken{}).
			Where("id = ? AND consumed_at IS NULL", tokenID).
			Update("consumed_at", now.UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshTokenNotCurrent
		}
		if err := tx.Create(successor).Error; err != nil {
			return err
		}
		return tx.Model(&domain.RefreshToken{}).
			Where("id = ?", tokenID).
			Update("superseded_by_token_id", successor.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotCurrent) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_token", "rotate", "conflict")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "refresh_token", "rotate", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_token", "rotate", "success")
	return successor, nil
}

// RevokeFamily is idempotent. The returned bool reports whether this call was
// the one that performed the transition, so callers can emit exactly one
// security event per family revocation.
func (r *GormRefreshTokenRepository) RevokeFamily(familyID, reason string, now time.Time) (bool, error) {
	var changed bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var f domain.RefreshTokenFamily
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("family_id = ?", familyID).
			First(&f).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRefreshFamilyNotFound
			}
			return err
		}
		res := tx.Model(&domain.RefreshTokenFamily{}).
			Where("family_id = ? AND revoked_at IS NULL", familyID).
			Updates(map[string]any{"revoked_at": now.UTC(), "revoke_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRefreshFamilyNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_family", "revoke", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "refresh_family", "revoke", "error")
		}
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_family", "revoke", "success")
	return changed, nil
}

// CleanupExpiredTokens removes rotated token rows whose expiry is long past.
// Family rows are never deleted; they are the forensic record.
func (r *GormRefreshTokenRepository) CleanupExpiredTokens(olderThan time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ? AND consumed_at IS NOT NULL", olderThan).
		Delete(&domain.RefreshToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "refresh_token", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_token", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
