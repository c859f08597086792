package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/observability"
	"auth-core-service/internal/repository"
)

// LockoutPolicy drives the escalation from failed attempts to timed locks.
// The backoff is a capped exponential, monotonically non-decreasing in the
// attempt count, so probing cannot shrink the lock window.
type LockoutPolicy struct {
	Threshold int
	BaseLock  time.Duration
	MaxLock   time.Duration
}

// LockDuration returns the lock length for the given post-increment failure
// count, or zero below the threshold.
func (p LockoutPolicy) LockDuration(failures int) time.Duration {
	if failures < p.Threshold {
		return 0
	}
	d := p.BaseLock
	for i := p.Threshold; i < failures; i++ {
		d *= 2
		if d >= p.MaxLock {
			return p.MaxLock
		}
	}
	if d > p.MaxLock {
		return p.MaxLock
	}
	return d
}

// LoginAttemptGuard records attempts and computes lockout state. The attempt
// log is unconditional; the counter lives behind the storage layer's locked
// read-modify-write so concurrent failures never lose increments.
type LoginAttemptGuard struct {
	creds  repository.CredentialRepository
	policy LockoutPolicy
	now    func() time.Time
}

func NewLoginAttemptGuard(creds repository.CredentialRepository, policy LockoutPolicy) *LoginAttemptGuard {
	return &LoginAttemptGuard{creds: creds, policy: policy, now: time.Now}
}

type LockState struct {
	Locked bool
	Until  time.Time
}

// CheckLock is a pure read. A locked_until in the past means unlocked; the
// row is not mutated (lazy expiry, no background sweep).
func (g *LoginAttemptGuard) CheckLock(ctx context.Context, email string) (LockState, error) {
	cred, err := g.creds.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return LockState{}, nil
		}
		return LockState{}, err
	}
	if cred.Locked(g.now()) {
		return LockState{Locked: true, Until: *cred.LockedUntil}, nil
	}
	return LockState{}, nil
}

type RecordAttemptInput struct {
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	// Throttled marks attempts rejected by the lock itself; they are logged
	// but never move the failure counter, so a held lock cannot extend
	// itself.
	Throttled bool
}

// RecordAttempt appends the attempt row unconditionally, then updates the
// counter: reset on success, locked increment on failure. Crossing the
// threshold returns an account_locked event payload for the orchestrator to
// persist.
func (g *LoginAttemptGuard) RecordAttempt(ctx context.Context, in RecordAttemptInput) (*domain.SecurityEvent, error) {
	attempt := &domain.LoginAttempt{
		Email:     in.Email,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Success:   in.Success,
	}
	if !in.Success && in.FailureReason != "" {
		reason := in.FailureReason
		attempt.FailureReason = &reason
	}
	if err := g.creds.AppendAttempt(attempt); err != nil {
		return nil, err
	}

	now := g.now()
	if in.Success {
		observability.RecordAuthLogin("success")
		return nil, g.creds.ResetFailures(in.Email, now)
	}
	if in.Throttled {
		observability.RecordAuthLogin("throttled")
		return nil, nil
	}
	observability.RecordAuthLogin("failure")

	var lockedNow bool
	cred, err := g.creds.RegisterFailure(in.Email, func(failures int) *time.Time {
		d := g.policy.LockDuration(failures)
		if d <= 0 {
			return nil
		}
		lockedNow = true
		until := now.Add(d)
		return &until
	})
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			// unknown identity still gets an attempt row, nothing to lock
			return nil, nil
		}
		return nil, err
	}
	if !lockedNow {
		return nil, nil
	}
	observability.RecordAccountLockout()
	return &domain.SecurityEvent{
		UserID:    &cred.UserID,
		Email:     cred.Email,
		EventType: domain.EventAccountLocked,
		Severity:  domain.SeverityHigh,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Metadata: map[string]string{
			"failed_attempts": strconv.Itoa(cred.FailedLoginAttempts),
			"locked_until":    cred.LockedUntil.UTC().Format(time.RFC3339),
		},
	}, nil
}

// Unlock is administrative: clears lock and counter. The event payload is
// returned only when a locked or counted row actually changed.
func (g *LoginAttemptGuard) Unlock(ctx context.Context, email string) (*domain.SecurityEvent, error) {
	changed, err := g.creds.Unlock(email)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return &domain.SecurityEvent{
		Email:     email,
		EventType: domain.EventAccountUnlocked,
		Severity:  domain.SeverityMedium,
	}, nil
}
