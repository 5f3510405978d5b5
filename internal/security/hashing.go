package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher derives and verifies bcrypt password hashes. Plaintext passwords
// must never be logged or persisted.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher at the given bcrypt cost. Out-of-range costs
// are clamped; zero or negative selects the bcrypt default.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash derives a storable bcrypt hash of password.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare checks password against a stored hash. It returns nil on a match
// and bcrypt.ErrMismatchedHashAndPassword (or a parse error for a malformed
// hash) otherwise.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}
