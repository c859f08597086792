package service

import (
	"context"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"
	"auth-core-service/internal/repository"
)

// SecurityEventRecorder is the append-only audit sink. It is deliberately
// dumb: one operation, structural stamping only, callable from anywhere.
type SecurityEventRecorder struct {
	events repository.SecurityEventRepository
	now    func() time.Time
}

func NewSecurityEventRecorder(events repository.SecurityEventRepository) *SecurityEventRecorder {
	return &SecurityEventRecorder{events: events, now: time.Now}
}

func (r *SecurityEventRecorder) Record(ctx context.Context, e *domain.SecurityEvent) error {
	if e == nil {
		return nil
	}
	if e.Severity == "" {
		e.Severity = domain.SeverityLow
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if err := r.events.Append(e); err != nil {
		return err
	}
	observability.RecordSecurityEvent(e.EventType, string(e.Severity))
	observability.Audit(ctx, e.EventType,
		"severity", string(e.Severity),
		"email", e.Email,
		"ip", e.IPAddress,
	)
	return nil
}
