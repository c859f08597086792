package repository

import (
	"testing"

	"auth-core-service/internal/domain"
)

func TestSecurityEventAppendPersistsMetadata(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewSecurityEventRepository(db)

	event := &domain.SecurityEvent{
		UserID:    uintPtr(9),
		Email:     "audit@example.com",
		EventType: domain.EventTokenReuseDetected,
		Severity:  domain.SeverityCritical,
		IPAddress: "10.2.2.2",
		Metadata:  map[string]string{"family_id": "fam-x"},
	}
	if err := repo.Append(event); err != nil {
		t.Fatalf("append: %v", err)
	}

	var got domain.SecurityEvent
	if err := db.First(&got, event.ID).Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.Severity != domain.SeverityCritical || got.Metadata["family_id"] != "fam-x" {
		t.Fatalf("unexpected row: %+v", got)
	}
}
