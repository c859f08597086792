package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// tokenSecretBytes gives 256 bits of entropy; the secrets are random, not
// user-chosen, so a fast keyed hash is the right at-rest protection.
const tokenSecretBytes = 32

// NewTokenSecret returns a fresh URL-safe secret. It is handed to the caller
// exactly once and never persisted.
func NewTokenSecret() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewNumericCode returns an n-digit code for SMS delivery.
func NewNumericCode(n int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate numeric code: %w", err)
	}
	for i := range buf {
		buf[i] = digits[int(buf[i])%len(digits)]
	}
	return string(buf), nil
}

// HashTokenSecret hashes a plaintext secret under a purpose-scoped key so a
// hash stored for one purpose can never satisfy a lookup for another, even
// for the same plaintext.
func HashTokenSecret(secret, purpose, pepper string) string {
	mac := hmac.New(sha256.New, derivePurposeKey(purpose, pepper))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstantTimeEquals compares two hex-encoded hashes without leaking length
// or prefix information through timing.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func derivePurposeKey(purpose, pepper string) []byte {
	r := hkdf.New(sha256.New, []byte(pepper), nil, []byte("auth-core/"+purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf over sha256 cannot fail before exhausting 255 blocks
		panic(err)
	}
	return key
}
