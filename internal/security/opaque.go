package security

import (
	"crypto/rand"
	"encoding/base64"
)

// NewOpaqueToken returns a base64url-encoded random string with n bytes of
// entropy. Used for refresh tokens (32 bytes) and authorization codes (32
// bytes). n must be at least 16.
func NewOpaqueToken(n int) (string, error) {
	if n < 16 {
		n = 16
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
