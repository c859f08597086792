package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"auth-core-service/internal/domain"
)

func TestSweepDeletesOnlyPastRetention(t *testing.T) {
	ctx := context.Background()
	tokens := newFakeAuthTokenRepo()
	refresh := newFakeRefreshRepo()
	creds := newFakeCredentialRepo()
	sweeper := NewRetentionSweeper(tokens, refresh, creds, 90*24*time.Hour)

	now := time.Now().UTC()
	stale := now.Add(-91 * 24 * time.Hour)
	fresh := now.Add(time.Hour)

	if err := tokens.Create(&domain.AuthToken{Type: domain.AuthTokenPasswordReset, UserID: uintPtr(1), TokenHash: "old", ExpiresAt: stale}); err != nil {
		t.Fatalf("create stale token: %v", err)
	}
	if err := tokens.Create(&domain.AuthToken{Type: domain.AuthTokenPasswordReset, UserID: uintPtr(1), TokenHash: "live", ExpiresAt: fresh}); err != nil {
		t.Fatalf("create live token: %v", err)
	}

	consumed := stale
	if err := refresh.CreateFamily(
		&domain.RefreshTokenFamily{FamilyID: "fam-1", UserID: 1},
		&domain.RefreshToken{TokenHash: "rt-old", ExpiresAt: stale, ConsumedAt: &consumed},
	); err != nil {
		t.Fatalf("create family: %v", err)
	}

	if err := creds.AppendAttempt(&domain.LoginAttempt{Email: "kim@example.com", CreatedAt: stale}); err != nil {
		t.Fatalf("append stale attempt: %v", err)
	}
	if err := creds.AppendAttempt(&domain.LoginAttempt{Email: "kim@example.com", CreatedAt: now}); err != nil {
		t.Fatalf("append fresh attempt: %v", err)
	}

	result, err := sweeper.Sweep(ctx, slog.Default())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.AuthTokens != 1 {
		t.Fatalf("swept %d auth tokens, want 1", result.AuthTokens)
	}
	if result.RefreshTokens != 1 {
		t.Fatalf("swept %d refresh tokens, want 1", result.RefreshTokens)
	}
	if result.LoginAttempts != 1 {
		t.Fatalf("swept %d login attempts, want 1", result.LoginAttempts)
	}

	if _, err := tokens.FindByHash("live", domain.AuthTokenPasswordReset); err != nil {
		t.Fatalf("live token must survive: %v", err)
	}
	// families are forensic state and are never deleted
	if _, err := refresh.FindFamily("fam-1"); err != nil {
		t.Fatalf("family must survive: %v", err)
	}
	if len(creds.attempts) != 1 {
		t.Fatalf("attempt rows = %d, want 1", len(creds.attempts))
	}
}

func TestSweepNilLogger(t *testing.T) {
	sweeper := NewRetentionSweeper(newFakeAuthTokenRepo(), newFakeRefreshRepo(), newFakeCredentialRepo(), time.Hour)
	if _, err := sweeper.Sweep(context.Background(), nil); err != nil {
		t.Fatalf("sweep: %v", err)
	}
}
