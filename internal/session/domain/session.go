package domain

import "time"

// Session represents a user session. A session owns a chain of refresh tokens;
// only the newest link of the chain is redeemable.
type Session struct {
	ID                    string
	UserID                string
	CurrentRefreshTokenID string     // newest refresh token in the chain; empty until first issue
	RevokedAt             *time.Time // nil when not revoked
	CreatedAt             time.Time
}

// Revoked reports whether the session has been revoked.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// RefreshToken is one link in a session's rotation chain
// (stored in refresh_tokens table). Only the token hash is persisted.
type RefreshToken struct {
	ID         string
	SessionID  string
	UserID     string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy string // ID of the token that superseded this one; empty for the chain head
}

// Active reports whether the token can still be redeemed at time now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ReplacedBy == "" && t.ExpiresAt.After(now)
}
