package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rdx-auth/internal/security"
	"rdx-auth/internal/session/domain"
)

// Sentinel errors for the session coordinator; handler maps them to HTTP codes.
var (
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected; session revoked")
)

const refreshTokenBytes = 32

// Grant holds the tokens issued when a session starts or refreshes.
type Grant struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	SessionID       string
	UserID          string
}

// SessionRepo is the minimal session repository needed by the coordinator.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error
	RotateRefreshToken(ctx context.Context, oldID string, newToken *domain.RefreshToken) (bool, error)
	RevokeChain(ctx context.Context, sessionID string, at time.Time) error
}

// RoleResolver returns the roles to embed in access tokens for a user.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, userID string) ([]string, error)
}

// Coordinator owns the session lifecycle: it starts sessions, rotates refresh
// tokens, detects replayed tokens, and revokes sessions on logout or replay.
type Coordinator struct {
	sessions   SessionRepo
	tokens     *security.TokenProvider
	roles      RoleResolver
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewCoordinator returns a Coordinator with the given dependencies.
func NewCoordinator(sessions SessionRepo, tokens *security.TokenProvider, roles RoleResolver, refreshTTL time.Duration) *Coordinator {
	return &Coordinator{
		sessions:   sessions,
		tokens:     tokens,
		roles:      roles,
		refreshTTL: refreshTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// StartSession creates a session for the user and issues the first token pair.
func (c *Coordinator) StartSession(ctx context.Context, userID string) (*Grant, error) {
	now := c.nowF()
	s := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
	}
	if err := c.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	return c.issue(ctx, s.ID, userID, "")
}

// Refresh redeems a refresh token, rotating the chain forward one link.
// A token that was already rotated or revoked is treated as replay: the whole
// chain is revoked and ErrRefreshTokenReuse is returned.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	t, err := c.sessions.GetRefreshTokenByHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrInvalidRefreshToken
	}
	now := c.nowF()
	// Replay is checked before expiry: a replaced or revoked token revokes
	// the chain even when it has also expired.
	if t.Revoked || t.ReplacedBy != "" {
		if err := c.sessions.RevokeChain(ctx, t.SessionID, now); err != nil {
			return nil, err
		}
		return nil, ErrRefreshTokenReuse
	}
	if !t.ExpiresAt.After(now) {
		return nil, ErrInvalidRefreshToken
	}
	s, err := c.sessions.GetByID(ctx, t.SessionID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Revoked() {
		return nil, ErrInvalidRefreshToken
	}
	return c.issue(ctx, t.SessionID, t.UserID, t.ID)
}

// Logout revokes the session that owns the given refresh token, and every
// token in its chain. Unknown tokens are a no-op so logout stays idempotent.
func (c *Coordinator) Logout(ctx context.Context, refreshToken string) error {
	t, err := c.sessions.GetRefreshTokenByHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	return c.sessions.RevokeChain(ctx, t.SessionID, c.nowF())
}

// RevokeSession revokes the given session and its refresh token chain.
func (c *Coordinator) RevokeSession(ctx context.Context, sessionID string) error {
	return c.sessions.RevokeChain(ctx, sessionID, c.nowF())
}

// RevokeAllForUser revokes every session and refresh token of the user.
func (c *Coordinator) RevokeAllForUser(ctx context.Context, userID string) error {
	return c.sessions.RevokeAllByUser(ctx, userID, c.nowF())
}

// issue mints an access token and a fresh opaque refresh token for the
// session. When prevTokenID is set, the new token must win the rotation race
// against the previous chain head; losing the race counts as replay.
func (c *Coordinator) issue(ctx context.Context, sessionID, userID, prevTokenID string) (*Grant, error) {
	roles, err := c.roles.ResolveRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := security.NewOpaqueToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	now := c.nowF()
	rt := &domain.RefreshToken{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		TokenHash: security.HashToken(refreshToken),
		IssuedAt:  now,
		ExpiresAt: now.Add(c.refreshTTL),
	}
	if prevTokenID == "" {
		if err := c.sessions.CreateRefreshToken(ctx, rt); err != nil {
			return nil, err
		}
	} else {
		ok, err := c.sessions.RotateRefreshToken(ctx, prevTokenID, rt)
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := c.sessions.RevokeChain(ctx, sessionID, now); err != nil {
				return nil, err
			}
			return nil, ErrRefreshTokenReuse
		}
	}
	access, _, expiresAt, err := c.tokens.IssueAccess(sessionID, userID, roles)
	if err != nil {
		return nil, err
	}
	return &Grant{
		AccessToken:     access,
		RefreshToken:    refreshToken,
		AccessExpiresAt: expiresAt,
		SessionID:       sessionID,
		UserID:          userID,
	}, nil
}
