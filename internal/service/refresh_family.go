package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"
	"auth-core-service/internal/repository"
	"auth-core-service/internal/security"

	"github.com/google/uuid"
)

const refreshSecretPurpose = "refresh_token"

// RefreshTokenFamilyManager owns the session-chain state machine: families
// go active -> revoked, tokens within an active family go current -> rotated.
// Presenting an already-rotated token burns the whole family.
type RefreshTokenFamilyManager struct {
	repo       repository.RefreshTokenRepository
	pepper     string
	refreshTTL time.Duration
	now        func() time.Time
}

func NewRefreshTokenFamilyManager(repo repository.RefreshTokenRepository, pepper string, refreshTTL time.Duration) *RefreshTokenFamilyManager {
	return &RefreshTokenFamilyManager{
		repo:       repo,
		pepper:     pepper,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

type StartedFamily struct {
	FamilyID  string
	UserID    uint
	Plaintext string
	Token     *domain.RefreshToken
}

type RotatedToken struct {
	FamilyID  string
	UserID    uint
	Plaintext string
	Token     *domain.RefreshToken
}

// StartFamily creates a new family with its first current token. Used only
// at login.
func (m *RefreshTokenFamilyManager) StartFamily(ctx context.Context, userID uint, ip, ua string) (*StartedFamily, error) {
	plaintext, err := security.NewTokenSecret()
	if err != nil {
		return nil, err
	}
	now := m.now()
	family := &domain.RefreshTokenFamily{
		FamilyID:  uuid.NewString(),
		UserID:    userID,
		IPAddress: ip,
		UserAgent: ua,
	}
	first := &domain.RefreshToken{
		TokenHash: security.HashTokenSecret(plaintext, refreshSecretPurpose, m.pepper),
		ExpiresAt: now.Add(m.refreshTTL).UTC(),
	}
	if err := m.repo.CreateFamily(family, first); err != nil {
		return nil, err
	}
	return &StartedFamily{
		FamilyID:  family.FamilyID,
		UserID:    userID,
		Plaintext: plaintext,
		Token:     first,
	}, nil
}

// Rotate exchanges the current token of a family for a fresh one.
//
// Unknown, expired and revoked-family tokens all collapse to
// ErrSessionRevoked so the failure branch does not leak. A token whose
// consumed_at is already set is the compromise signal: the whole family is
// revoked, one critical event payload is returned, and the caller gets
// ErrTokenReplayDetected. A concurrent rotation loser is routed through the
// same branch because a genuine race is indistinguishable from an attacker.
func (m *RefreshTokenFamilyManager) Rotate(ctx context.Context, plaintext, ip, ua string) (*RotatedToken, *domain.SecurityEvent, error) {
	hash := security.HashTokenSecret(plaintext, refreshSecretPurpose, m.pepper)
	token, err := m.repo.FindTokenByHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			observability.RecordAuthRefresh("unknown_token")
			return nil, nil, ErrSessionRevoked
		}
		return nil, nil, err
	}
	family, err := m.repo.FindFamily(token.FamilyID)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshFamilyNotFound) {
			observability.RecordAuthRefresh("unknown_family")
			return nil, nil, ErrSessionRevoked
		}
		return nil, nil, err
	}

	now := m.now()
	if family.State() == domain.FamilyRevoked {
		observability.RecordAuthRefresh("family_revoked")
		return nil, nil, ErrSessionRevoked
	}
	if token.State() == domain.RefreshTokenRotated {
		event, err := m.burnFamily(ctx, family, token, ip, ua, now)
		if err != nil {
			return nil, nil, err
		}
		observability.RecordAuthRefresh("reuse_detected")
		return nil, event, ErrTokenReplayDetected
	}
	if token.Expired(now) {
		observability.RecordAuthRefresh("expired")
		return nil, nil, ErrSessionRevoked
	}

	newPlaintext, err := security.NewTokenSecret()
	if err != nil {
		return nil, nil, err
	}
	successor := &domain.RefreshToken{
		FamilyID:  token.FamilyID,
		UserID:    token.UserID,
		TokenHash: security.HashTokenSecret(newPlaintext, refreshSecretPurpose, m.pepper),
		ExpiresAt: now.Add(m.refreshTTL).UTC(),
	}
	if _, err := m.repo.Rotate(token.ID, successor, now); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotCurrent) {
			// lost the rotation race to a concurrent caller
			event, burnErr := m.burnFamily(ctx, family, token, ip, ua, now)
			if burnErr != nil {
				return nil, nil, burnErr
			}
			observability.RecordAuthRefresh("reuse_detected")
			return nil, event, ErrTokenReplayDetected
		}
		return nil, nil, err
	}
	observability.RecordAuthRefresh("rotated")
	return &RotatedToken{
		FamilyID:  token.FamilyID,
		UserID:    token.UserID,
		Plaintext: newPlaintext,
		Token:     successor,
	}, nil, nil
}

// RevokeFamily is idempotent: revoking an already-revoked family succeeds
// with no event payload, so each family produces at most one revocation
// event.
func (m *RefreshTokenFamilyManager) RevokeFamily(ctx context.Context, familyID, reason string) (*domain.SecurityEvent, error) {
	family, err := m.repo.FindFamily(familyID)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshFamilyNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}
	changed, err := m.repo.RevokeFamily(familyID, reason, m.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return &domain.SecurityEvent{
		UserID:    &family.UserID,
		EventType: domain.EventTokenFamilyRevoked,
		Severity:  domain.SeverityMedium,
		Metadata: map[string]string{
			"family_id": familyID,
			"reason":    reason,
		},
	}, nil
}

// burnFamily performs the reuse-detection revocation. The event is emitted
// only by the call that actually flipped the family to revoked, so a replay
// storm produces exactly one critical event.
func (m *RefreshTokenFamilyManager) burnFamily(ctx context.Context, family *domain.RefreshTokenFamily, token *domain.RefreshToken, ip, ua string, now time.Time) (*domain.SecurityEvent, error) {
	changed, err := m.repo.RevokeFamily(family.FamilyID, domain.RevokeReasonReuseDetected, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return &domain.SecurityEvent{
		UserID:    &family.UserID,
		EventType: domain.EventTokenReuseDetected,
		Severity:  domain.SeverityCritical,
		IPAddress: ip,
		UserAgent: ua,
		Metadata: map[string]string{
			"family_id":         family.FamilyID,
			"presented_token":   fmt.Sprintf("%d", token.ID),
			"family_created_at": family.CreatedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}
