package service

import (
	"context"
	"errors"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/security"
)

// CredentialVerifier checks a password against the stored credential.
// Hashing algorithm choice belongs to the caller, not this core.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (userID uint, err error)
}

// IdentityResolver maps a user id back to the lockout identity. Optional;
// without it token-reuse detections do not feed the failure counter.
type IdentityResolver interface {
	EmailForUser(ctx context.Context, userID uint) (string, error)
}

// AuthOrchestrator sequences guard, family manager, issuer and recorder for
// the login, refresh, logout and token-consumption flows. It persists every
// security-event payload the lower components return, before surfacing the
// caller's result, so no transition can silently skip its audit write.
type AuthOrchestrator struct {
	guard    *LoginAttemptGuard
	families *RefreshTokenFamilyManager
	issuer   *AuthTokenIssuer
	recorder *SecurityEventRecorder
	verifier CredentialVerifier
	resolver IdentityResolver
	jwt      *security.JWTManager

	accessTTL time.Duration
}

func NewAuthOrchestrator(
	guard *LoginAttemptGuard,
	families *RefreshTokenFamilyManager,
	issuer *AuthTokenIssuer,
	recorder *SecurityEventRecorder,
	verifier CredentialVerifier,
	resolver IdentityResolver,
	jwtMgr *security.JWTManager,
	accessTTL time.Duration,
) *AuthOrchestrator {
	return &AuthOrchestrator{
		guard:     guard,
		families:  families,
		issuer:    issuer,
		recorder:  recorder,
		verifier:  verifier,
		resolver:  resolver,
		jwt:       jwtMgr,
		accessTTL: accessTTL,
	}
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

type LoginResult struct {
	UserID       uint
	FamilyID     string
	AccessToken  string
	RefreshToken string
}

// Login: check lock, verify, record outcome, start a family. The attempt
// row is appended on every path, including lock rejections.
func (o *AuthOrchestrator) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	lock, err := o.guard.CheckLock(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if lock.Locked {
		if _, err := o.guard.RecordAttempt(ctx, RecordAttemptInput{
			Email:         in.Email,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
			Success:       false,
			FailureReason: "account_locked",
			Throttled:     true,
		}); err != nil {
			return nil, err
		}
		return nil, ErrAccountLocked
	}

	userID, verifyErr := o.verifier.Verify(ctx, in.Email, in.Password)
	if verifyErr != nil {
		lockEvent, err := o.guard.RecordAttempt(ctx, RecordAttemptInput{
			Email:         in.Email,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
			Success:       false,
			FailureReason: "invalid_credentials",
		})
		if err != nil {
			return nil, err
		}
		if err := o.recorder.Record(ctx, &domain.SecurityEvent{
			Email:     in.Email,
			EventType: domain.EventLoginFailed,
			Severity:  domain.SeverityLow,
			IPAddress: in.IPAddress,
			UserAgent: in.UserAgent,
			Metadata:  map[string]string{"reason": "invalid_credentials"},
		}); err != nil {
			return nil, err
		}
		if err := o.recorder.Record(ctx, lockEvent); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if _, err := o.guard.RecordAttempt(ctx, RecordAttemptInput{
		Email:     in.Email,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Success:   true,
	}); err != nil {
		return nil, err
	}

	started, err := o.families.StartFamily(ctx, userID, in.IPAddress, in.UserAgent)
	if err != nil {
		return nil, err
	}
	access, err := o.jwt.SignAccessToken(userID, o.accessTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		UserID:       userID,
		FamilyID:     started.FamilyID,
		AccessToken:  access,
		RefreshToken: started.Plaintext,
	}, nil
}

type RefreshResult struct {
	UserID       uint
	FamilyID     string
	AccessToken  string
	RefreshToken string
}

// Refresh rotates the presented token. Replay detection additionally feeds
// the victim's failure counter: a burned family is treated as a failed
// login against the account so sustained replay escalates to lockout.
func (o *AuthOrchestrator) Refresh(ctx context.Context, refreshToken, ip, ua string) (*RefreshResult, error) {
	rotated, event, rotateErr := o.families.Rotate(ctx, refreshToken, ip, ua)
	if err := o.recorder.Record(ctx, event); err != nil {
		return nil, err
	}
	if rotateErr != nil {
		if errors.Is(rotateErr, ErrTokenReplayDetected) {
			o.feedReplayToGuard(ctx, event, ip, ua)
		}
		return nil, rotateErr
	}
	access, err := o.jwt.SignAccessToken(rotated.UserID, o.accessTTL)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		UserID:       rotated.UserID,
		FamilyID:     rotated.FamilyID,
		AccessToken:  access,
		RefreshToken: rotated.Plaintext,
	}, nil
}

func (o *AuthOrchestrator) feedReplayToGuard(ctx context.Context, event *domain.SecurityEvent, ip, ua string) {
	if o.resolver == nil || event == nil || event.UserID == nil {
		return
	}
	email, err := o.resolver.EmailForUser(ctx, *event.UserID)
	if err != nil || email == "" {
		return
	}
	lockEvent, err := o.guard.RecordAttempt(ctx, RecordAttemptInput{
		Email:         email,
		IPAddress:     ip,
		UserAgent:     ua,
		Success:       false,
		FailureReason: "token_reuse",
	})
	if err != nil {
		return
	}
	_ = o.recorder.Record(ctx, lockEvent)
}

// Logout revokes the session chain. Idempotent; the revocation event is
// persisted only by the call that performed the transition.
func (o *AuthOrchestrator) Logout(ctx context.Context, familyID string) error {
	event, err := o.families.RevokeFamily(ctx, familyID, domain.RevokeReasonLogout)
	if err != nil {
		return err
	}
	return o.recorder.Record(ctx, event)
}

// ConsumeToken validates-and-consumes a one-time token, persisting any
// replay-suspected event regardless of the outcome the caller sees.
func (o *AuthOrchestrator) ConsumeToken(ctx context.Context, typ domain.AuthTokenType, subject TokenSubject, plaintext string) (*domain.AuthToken, error) {
	token, event, validateErr := o.issuer.Validate(ctx, typ, subject, plaintext)
	if err := o.recorder.Record(ctx, event); err != nil {
		return nil, err
	}
	if validateErr != nil {
		return nil, validateErr
	}
	return token, nil
}
