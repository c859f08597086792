package repository

import (
	"context"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"

	"gorm.io/gorm"
)

// SecurityEventRepository is append-only. No reads are exposed; querying the
// audit log is a reporting concern outside this core.
type SecurityEventRepository interface {
	Append(e *domain.SecurityEvent) error
}

type GormSecurityEventRepository struct{ db *gorm.DB }

func NewSecurityEventRepository(db *gorm.DB) SecurityEventRepository {
	return &GormSecurityEventRepository{db: db}
}

func (r *GormSecurityEventRepository) Append(e *domain.SecurityEvent) error {
	err := r.db.Create(e).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "security_event", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "security_event", "append", "success")
	return nil
}
