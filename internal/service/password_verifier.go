package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"auth-core-service/internal/repository"
)

// BcryptCredentialVerifier verifies passwords against the stored bcrypt
// hash. It also doubles as the identity resolver used when token-reuse
// detections feed the failure counter.
type BcryptCredentialVerifier struct {
	creds repository.CredentialRepository
}

func NewBcryptCredentialVerifier(creds repository.CredentialRepository) *BcryptCredentialVerifier {
	return &BcryptCredentialVerifier{creds: creds}
}

func (v *BcryptCredentialVerifier) Verify(ctx context.Context, email, password string) (uint, error) {
	cred, err := v.creds.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}
	if cred.PasswordHash == "" {
		return 0, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return 0, ErrInvalidCredentials
	}
	return cred.UserID, nil
}

func (v *BcryptCredentialVerifier) EmailForUser(ctx context.Context, userID uint) (string, error) {
	cred, err := v.creds.FindByUserID(userID)
	if err != nil {
		return "", err
	}
	return cred.Email, nil
}
