package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minTokenLength = 8

// ValidateToken checks minimal upload token requirements.
func ValidateToken(token string) error {
	if len(token) < minTokenLength {
		return fmt.Errorf("token must be at least %d characters", minTokenLength)
	}
	return nil
}

// HashToken hashes one plaintext upload token for the config file.
func HashToken(token string) (string, error) {
	if err := ValidateToken(token); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyTokenHash verifies a plaintext token against a bcrypt hash.
func VerifyTokenHash(tokenHash, candidate string) bool {
	if strings.TrimSpace(tokenHash) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(candidate)) == nil
}

// Verifier checks upload tokens against either a bcrypt hash or a plain secret.
type Verifier struct {
	secret string
	hash   string
}

// NewVerifier returns a verifier. A non-empty hash takes precedence over secret.
func NewVerifier(secret, hash string) Verifier {
	return Verifier{secret: secret, hash: strings.TrimSpace(hash)}
}

// Verify reports whether candidate is the configured token. Empty candidates
// never match.
func (v Verifier) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	if v.hash != "" {
		return VerifyTokenHash(v.hash, candidate)
	}
	if v.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(v.secret), []byte(candidate)) == 1
}
