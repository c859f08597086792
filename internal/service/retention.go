package service

import (
	"context"
	"log/slog"
	"time"

	"auth-core-service/internal/repository"
)

// RetentionSweeper deletes rows past their audit-retention window. Security
// events are exempt: the audit trail is append-only and never swept here.
type RetentionSweeper struct {
	tokens  repository.AuthTokenRepository
	refresh repository.RefreshTokenRepository
	creds   repository.CredentialRepository
	window  time.Duration
	now     func() time.Time
}

func NewRetentionSweeper(tokens repository.AuthTokenRepository, refresh repository.RefreshTokenRepository, creds repository.CredentialRepository, window time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		tokens:  tokens,
		refresh: refresh,
		creds:   creds,
		window:  window,
		now:     time.Now,
	}
}

type SweepResult struct {
	AuthTokens    int64
	RefreshTokens int64
	LoginAttempts int64
}

func (s *RetentionSweeper) Sweep(ctx context.Context, logger *slog.Logger) (SweepResult, error) {
	cutoff := s.now().UTC().Add(-s.window)
	var out SweepResult

	n, err := s.tokens.CleanupExpired(cutoff)
	if err != nil {
		return out, err
	}
	out.AuthTokens = n

	n, err = s.refresh.CleanupExpiredTokens(cutoff)
	if err != nil {
		return out, err
	}
	out.RefreshTokens = n

	n, err = s.creds.CleanupAttempts(cutoff)
	if err != nil {
		return out, err
	}
	out.LoginAttempts = n

	if logger != nil {
		logger.InfoContext(ctx, "retention sweep complete",
			"cutoff", cutoff,
			"auth_tokens", out.AuthTokens,
			"refresh_tokens", out.RefreshTokens,
			"login_attempts", out.LoginAttempts,
		)
	}
	return out, nil
}
