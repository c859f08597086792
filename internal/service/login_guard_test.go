package service

import (
	"context"
	"testing"
	"time"

	"auth-core-service/internal/domain"
)

func newGuardForTest(creds *fakeCredentialRepo) *LoginAttemptGuard {
	return NewLoginAttemptGuard(creds, LockoutPolicy{
		Threshold: 3,
		BaseLock:  time.Minute,
		MaxLock:   time.Hour,
	})
}

func seedGuardCredential(t *testing.T, creds *fakeCredentialRepo, userID uint, email string) {
	t.Helper()
	if err := creds.Create(&domain.UserCredential{UserID: userID, Email: email, PasswordHash: "x"}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
}

func TestLockDurationEscalation(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, BaseLock: time.Minute, MaxLock: time.Hour}
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, 0},
		{4, 0},
		{5, time.Minute},
		{6, 2 * time.Minute},
		{9, 16 * time.Minute},
		{11, time.Hour},
		{40, time.Hour},
	}
	for _, tc := range cases {
		if got := policy.LockDuration(tc.failures); got != tc.want {
			t.Errorf("LockDuration(%d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

func TestRecordAttemptLocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	creds := newFakeCredentialRepo()
	guard := newGuardForTest(creds)
	seedGuardCredential(t, creds, 9, "kim@example.com")

	fail := RecordAttemptInput{Email: "kim@example.com", IPAddress: "203.0.113.4", FailureReason: "invalid_credentials"}
	for i := 0; i < 2; i++ {
		event, err := guard.RecordAttempt(ctx, fail)
		if err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
		if event != nil {
			t.Fatalf("failure %d below threshold emitted %s", i+1, event.EventType)
		}
	}

	event, err := guard.RecordAttempt(ctx, fail)
	if err != nil {
		t.Fatalf("threshold failure: %v", err)
	}
	if event == nil || event.EventType != domain.EventAccountLocked {
		t.Fatalf("expected account-locked event, got %+v", event)
	}
	if event.Metadata["failed_attempts"] != "3" {
		t.Fatalf("failed_attempts metadata = %q", event.Metadata["failed_attempts"])
	}

	state, err := guard.CheckLock(ctx, "kim@example.com")
	if err != nil {
		t.Fatalf("check lock: %v", err)
	}
	if !state.Locked {
		t.Fatal("expected lock to be active")
	}
	if !state.Until.After(time.Now()) {
		t.Fatal("lock must extend into the future")
	}
}

func TestRecordAttemptThrottledNeverEscalates(t *testing.T) {
	ctx := context.Background()
	creds := newFakeCredentialRepo()
	guard := newGuardForTest(creds)
	seedGuardCredential(t, creds, 9, "kim@example.com")

	fail := RecordAttemptInput{Email: "kim@example.com", FailureReason: "invalid_credentials"}
	for i := 0; i < 3; i++ {
		if _, err := guard.RecordAttempt(ctx, fail); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}
	lockedUntil := *mustCredential(t, creds, "kim@example.com").LockedUntil

	// hammering a locked account logs attempts but never moves the lock
	for i := 0; i < 5; i++ {
		event, err := guard.RecordAttempt(ctx, RecordAttemptInput{
			Email:         "kim@example.com",
			FailureReason: "account_locked",
			Throttled:     true,
		})
		if err != nil {
			t.Fatalf("throttled attempt: %v", err)
		}
		if event != nil {
			t.Fatal("throttled attempts must not emit events")
		}
	}

	cred := mustCredential(t, creds, "kim@example.com")
	if cred.FailedLoginAttempts != 3 {
		t.Fatalf("counter = %d, want 3", cred.FailedLoginAttempts)
	}
	if !cred.LockedUntil.Equal(lockedUntil) {
		t.Fatal("lock deadline must not move under throttled attempts")
	}
	if len(creds.attempts) != 8 {
		t.Fatalf("attempt rows = %d, want 8", len(creds.attempts))
	}
}

func TestCheckLockExpiresLazily(t *testing.T) {
	ctx := context.Background()
	creds := newFakeCredentialRepo()
	guard := newGuardForTest(creds)
	seedGuardCredential(t, creds, 9, "kim@example.com")

	fail := RecordAttemptInput{Email: "kim@example.com", FailureReason: "invalid_credentials"}
	for i := 0; i < 3; i++ {
		if _, err := guard.RecordAttempt(ctx, fail); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}

	guard.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	state, err := guard.CheckLock(ctx, "kim@example.com")
	if err != nil {
		t.Fatalf("check lock: %v", err)
	}
	if state.Locked {
		t.Fatal("expired lock must read as unlocked")
	}
	// the row itself is untouched
	if mustCredential(t, creds, "kim@example.com").LockedUntil == nil {
		t.Fatal("lazy expiry must not clear the stored deadline")
	}
}

func TestRecordAttemptSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	creds := newFakeCredentialRepo()
	guard := newGuardForTest(creds)
	seedGuardCredential(t, creds, 9, "kim@example.com")

	fail := RecordAttemptInput{Email: "kim@example.com", FailureReason: "invalid_credentials"}
	for i := 0; i < 2; i++ {
		if _, err := guard.RecordAttempt(ctx, fail); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}
	if _, err := guard.RecordAttempt(ctx, RecordAttemptInput{Email: "kim@example.com", Success: true}); err != nil {
		t.Fatalf("success: %v", err)
	}

	cred := mustCredential(t, creds, "kim@example.com")
	if cred.FailedLoginAttempts != 0 {
		t.Fatalf("counter = %d, want 0 after success", cred.FailedLoginAttempts)
	}
	if cred.LastLoginAt == nil {
		t.Fatal("success must stamp last_login_at")
	}
}

func TestRecordAttemptUnknownEmailStillLogged(t *testing.T) {
	ctx := context.Background()
	creds := newFakeCredentialRepo()
	guard := newGuardForTest(creds)

	event, err := guard.RecordAttempt(ctx, RecordAttemptInput{Email: "ghost@example.com", FailureReason: "invalid_credentials"})
	if err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if event != nil {
		t.Fatal("unknown identity cannot be locked")
	}
	if len(creds.attempts) != 1 {
		t.Fatalf("attempt rows = %d, want 1", len(creds.attempts))
	}
}

func TestUnlockEmitsEventOnlyOnTransition(t *testing.T) {
	ctx := context.Background()
	creds := newFakeCredentialRepo()
	guard := newGuardForTest(creds)
	seedGuardCredential(t, creds, 9, "kim@example.com")

	fail := RecordAttemptInput{Email: "kim@example.com", FailureReason: "invalid_credentials"}
	for i := 0; i < 3; i++ {
		if _, err := guard.RecordAttempt(ctx, fail); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}

	event, err := guard.Unlock(ctx, "kim@example.com")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if event == nil || event.EventType != domain.EventAccountUnlocked {
		t.Fatalf("expected account-unlocked event, got %+v", event)
	}

	event, err = guard.Unlock(ctx, "kim@example.com")
	if err != nil {
		t.Fatalf("repeat unlock: %v", err)
	}
	if event != nil {
		t.Fatal("unlocking an unlocked account must not emit an event")
	}
}

func mustCredential(t *testing.T, creds *fakeCredentialRepo, email string) *domain.UserCredential {
	t.Helper()
	cred, err := creds.FindByEmail(email)
	if err != nil {
		t.Fatalf("find credential %s: %v", email, err)
	}
	return cred
}
