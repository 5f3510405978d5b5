package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCEMethodS256 is the only supported code_challenge_method (RFC 7636 §4.2).
const PKCEMethodS256 = "S256"

// PKCEChallenge computes the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) without padding.
func PKCEChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks the verifier against the stored challenge in constant time.
// Only S256 is accepted; the "plain" method is rejected.
func VerifyPKCE(verifier, challenge, method string) bool {
	if method != PKCEMethodS256 {
		return false
	}
	computed := PKCEChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
