package service

import (
	"context"
	"errors"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"
	"auth-core-service/internal/repository"
	"auth-core-service/internal/security"
)

// MagicLinkLimiter throttles magic-link issuance per email and per source IP.
// A nil limiter disables throttling.
type MagicLinkLimiter interface {
	Allow(ctx context.Context, email, ip string) error
}

// TokenTTLs are the per-type default lifetimes for one-time tokens.
type TokenTTLs struct {
	PasswordReset     time.Duration
	EmailVerification time.Duration
	EmailChange       time.Duration
	MagicLink         time.Duration
}

func (t TokenTTLs) forType(typ domain.AuthTokenType) time.Duration {
	switch typ {
	case domain.AuthTokenPasswordReset:
		return t.PasswordReset
	case domain.AuthTokenEmailVerification:
		return t.EmailVerification
	case domain.AuthTokenEmailChange, domain.AuthTokenEmailChangeRevert:
		return t.EmailChange
	case domain.AuthTokenMagicLink:
		return t.MagicLink
	}
	return 0
}

// AuthTokenIssuer owns the five one-time token types: issue once, consume
// once, expire independently.
type AuthTokenIssuer struct {
	tokens  repository.AuthTokenRepository
	limiter MagicLinkLimiter
	spent   ConsumedTokenCache
	pepper  string
	ttls    TokenTTLs
	now     func() time.Time
}

func NewAuthTokenIssuer(tokens repository.AuthTokenRepository, limiter MagicLinkLimiter, spent ConsumedTokenCache, pepper string, ttls TokenTTLs) *AuthTokenIssuer {
	if spent == nil {
		spent = NewNoopConsumedTokenCache()
	}
	return &AuthTokenIssuer{
		tokens:  tokens,
		limiter: limiter,
		spent:   spent,
		pepper:  pepper,
		ttls:    ttls,
		now:     time.Now,
	}
}

// TokenSubject scopes issuance and validation. UserID is nil only for
// magic_link tokens issued before an account exists.
type TokenSubject struct {
	UserID *uint
	Email  string
}

type IssueTokenInput struct {
	Type      domain.AuthTokenType
	Subject   TokenSubject
	TTL       time.Duration // zero means the configured default for the type
	IPAddress string
	UserAgent string
	Metadata  map[string]string
}

// Issue creates a token row and returns the plaintext secret exactly once.
// Older live tokens of the same type for the same subject are superseded.
func (s *AuthTokenIssuer) Issue(ctx context.Context, in IssueTokenInput) (string, *domain.AuthToken, error) {
	if !domain.ValidAuthTokenType(in.Type) {
		return "", nil, ErrUnknownTokenType
	}
	if in.Type != domain.AuthTokenMagicLink && in.Subject.UserID == nil {
		return "", nil, ErrTokenInvalid
	}
	if in.Type == domain.AuthTokenMagicLink && s.limiter != nil {
		if err := s.limiter.Allow(ctx, in.Subject.Email, in.IPAddress); err != nil {
			return "", nil, err
		}
	}

	now := s.now()
	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.ttls.forType(in.Type)
	}

	if _, err := s.tokens.InvalidateActive(in.Type, in.Subject.UserID, in.Subject.Email, now); err != nil {
		return "", nil, err
	}

	plaintext, err := security.NewTokenSecret()
	if err != nil {
		return "", nil, err
	}
	token := &domain.AuthToken{
		Type:      in.Type,
		UserID:    in.Subject.UserID,
		Email:     in.Subject.Email,
		TokenHash: security.HashTokenSecret(plaintext, string(in.Type), s.pepper),
		ExpiresAt: now.Add(ttl).UTC(),
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Metadata:  in.Metadata,
	}
	if err := s.tokens.Create(token); err != nil {
		return "", nil, err
	}
	observability.RecordTokenValidation(string(in.Type), "issued")
	return plaintext, token, nil
}

// Validate proves possession of a live token and atomically consumes it.
// The conditional consume in the repository is the linearization point: of
// two concurrent validations one succeeds and the other gets
// ErrTokenAlreadyUsed together with a replay-suspected event payload, which
// the orchestrator persists regardless of what the caller does with the
// error.
func (s *AuthTokenIssuer) Validate(ctx context.Context, typ domain.AuthTokenType, subject TokenSubject, plaintext string) (*domain.AuthToken, *domain.SecurityEvent, error) {
	if !domain.ValidAuthTokenType(typ) {
		return nil, nil, ErrUnknownTokenType
	}
	hash := security.HashTokenSecret(plaintext, string(typ), s.pepper)
	if seen, err := s.spent.Seen(ctx, string(typ), hash); err == nil && seen {
		observability.RecordTokenValidation(string(typ), "already_used")
		return nil, &domain.SecurityEvent{
			Email:     subject.Email,
			UserID:    subject.UserID,
			EventType: domain.EventTokenReplaySuspected,
			Severity:  domain.SeverityMedium,
			Metadata: map[string]string{
				"token_type": string(typ),
				"source":     "tombstone_cache",
			},
		}, ErrTokenAlreadyUsed
	}
	token, err := s.tokens.FindByHash(hash, typ)
	if err != nil {
		if errors.Is(err, repository.ErrAuthTokenNotFound) {
			observability.RecordTokenValidation(string(typ), "invalid")
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}
	if !s.subjectMatches(token, subject) {
		observability.RecordTokenValidation(string(typ), "invalid")
		return nil, nil, ErrTokenInvalid
	}

	now := s.now()
	switch token.State(now) {
	case domain.AuthTokenConsumed:
		observability.RecordTokenValidation(string(typ), "already_used")
		s.markSpent(ctx, token, hash, now)
		return nil, s.replayEvent(token), ErrTokenAlreadyUsed
	case domain.AuthTokenExpired:
		observability.RecordTokenValidation(string(typ), "expired")
		return nil, nil, ErrTokenExpired
	}

	if err := s.tokens.Consume(token.ID, now); err != nil {
		if errors.Is(err, repository.ErrAuthTokenNotFound) {
			// lost the consume race: indistinguishable from replay
			observability.RecordTokenValidation(string(typ), "already_used")
			s.markSpent(ctx, token, hash, now)
			return nil, s.replayEvent(token), ErrTokenAlreadyUsed
		}
		return nil, nil, err
	}
	used := now.UTC()
	token.UsedAt = &used
	s.markSpent(ctx, token, hash, now)
	observability.RecordTokenValidation(string(typ), "consumed")
	return token, nil, nil
}

// markSpent tombstones the hash until well past the token's own expiry, the
// window in which a replay could otherwise still reach the database.
func (s *AuthTokenIssuer) markSpent(ctx context.Context, token *domain.AuthToken, hash string, now time.Time) {
	ttl := token.ExpiresAt.Sub(now) + time.Hour
	if ttl <= 0 {
		return
	}
	_ = s.spent.Mark(ctx, string(token.Type), hash, ttl)
}

func (s *AuthTokenIssuer) subjectMatches(token *domain.AuthToken, subject TokenSubject) bool {
	if token.UserID != nil {
		return subject.UserID != nil && *subject.UserID == *token.UserID
	}
	return subject.Email != "" && subject.Email == token.Email
}

func (s *AuthTokenIssuer) replayEvent(token *domain.AuthToken) *domain.SecurityEvent {
	return &domain.SecurityEvent{
		UserID:    token.UserID,
		Email:     token.Email,
		EventType: domain.EventTokenReplaySuspected,
		Severity:  domain.SeverityMedium,
		Metadata: map[string]string{
			"token_type": string(token.Type),
		},
	}
}
