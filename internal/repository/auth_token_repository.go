package repository

import (
	"context"
	"errors"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"

	"gorm.io/gorm"
)

var ErrAuthTokenNotFound = errors.New("auth token not found")

type AuthTokenRepository interface {
	Create(t *domain.AuthToken) error
	FindByHash(hash string, typ domain.AuthTokenType) (*domain.AuthToken, error)
	Consume(id uint, now time.Time) error
	InvalidateActive(typ domain.AuthTokenType, userID *uint, email string, now time.Time) (int64, error)
	CleanupExpired(olderThan time.Time) (int64, error)
}

type GormAuthTokenRepository struct{ db *gorm.DB }

func NewAuthTokenRepository(db *gorm.DB) AuthTokenRepository {
	return &GormAuthTokenRepository{db: db}
}

func (r *GormAuthTokenRepository) Create(t *domain.AuthToken) error {
	err := r.db.Create(t).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "auth_token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "auth_token", "create", "success")
	return nil
}

func (r *GormAuthTokenRepository) FindByHash(hash string, typ domain.AuthTokenType) (*domain.AuthToken, error) {
	var t domain.AuthToken
	err := r.db.Where("token_hash = ? AND type = ?", hash, typ).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "auth_token", "find_by_hash", "not_found")
			return nil, ErrAuthTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "auth_token", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "auth_token", "find_by_hash", "success")
	return &t, nil
}

// Consume sets used_at if and only if it is still null. The conditional
// update is the single atomic transition two concurrent validations race on;
// the loser sees zero rows affected.
func (r *GormAuthTokenRepository) Consume(id uint, now time.Time) error {
	res := r.db.Model(&domain.AuthToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", now.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "auth_token", "consume", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "auth_token", "consume", "conflict")
		return ErrAuthTokenNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "auth_token", "consume", "success")
	return nil
}

// InvalidateActive expires every live token of the given type for the
// subject. Issuing a fresh token supersedes its predecessors; used_at stays
// untouched so the single-mutation consumption invariant holds.
func (r *GormAuthTokenRepository) InvalidateActive(typ domain.AuthTokenType, userID *uint, email string, now time.Time) (int64, error) {
	q := r.db.Model(&domain.AuthToken{}).
		Where("type = ? AND used_at IS NULL AND expires_at > ?", typ, now)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	} else {
		q = q.Where("email = ?", email)
	}
	res := q.Update("expires_at", now.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "auth_token", "invalidate_active", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "auth_token", "invalidate_active", "success")
	return res.RowsAffected, nil
}

func (r *GormAuthTokenRepository) CleanupExpired(olderThan time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", olderThan).Delete(&domain.AuthToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "auth_token", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "auth_token", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
