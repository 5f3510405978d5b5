package domain

import "time"

// AuthorizationCode is a single-use grant linking an authenticated user to a
// client redirect (stored in authorization_codes table). Only the code hash
// is persisted.
type AuthorizationCode struct {
	ID                  string
	CodeHash            string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
	Consumed            bool
	ExpiresAt           time.Time
	CreatedAt           time.Time
}
