package repository

import (
	"context"
	"time"

	"rdx-auth/internal/session/domain"
)

// Repository defines persistence for sessions and their refresh token chains.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) error

	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error
	// RotateRefreshToken atomically marks old as replaced by a new token and
	// inserts the new token, updating the session's chain head. It succeeds
	// only if old is still the unrevoked, unreplaced head; returns false when
	// another caller rotated or revoked it first.
	RotateRefreshToken(ctx context.Context, oldID string, newToken *domain.RefreshToken) (bool, error)
	// RevokeChain revokes every refresh token of the session and the session itself.
	RevokeChain(ctx context.Context, sessionID string, at time.Time) error
}
