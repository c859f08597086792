package service

import "errors"

// Typed outcomes surfaced to callers. These are control-flow results, not
// faults: callers match with errors.Is and decide UX. User-facing text must
// not distinguish expired from used from reused; the audit trail does.
var (
	ErrTokenInvalid        = errors.New("token invalid")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenAlreadyUsed    = errors.New("token already used")
	ErrSessionRevoked      = errors.New("session revoked")
	ErrTokenReplayDetected = errors.New("token reuse detected")
	ErrAccountLocked       = errors.New("account locked")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrMagicLinkThrottled  = errors.New("magic link issuance rate limited")
	ErrSecondFactorInvalid = errors.New("second factor invalid")
	ErrSecondFactorReplay  = errors.New("second factor replay detected")
	ErrUnknownTokenType    = errors.New("unknown token type")
)
