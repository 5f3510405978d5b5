package repository

import (
	"context"

	"rdx-auth/internal/user/domain"
)

// Repository defines persistence for users. Create must enforce email and
// phone uniqueness atomically with insertion (unique constraint, not
// read-then-write) and return *domain.DuplicateError on collision.
type Repository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, countryCode, number string) (*domain.User, error)
	SetVerified(ctx context.Context, userID string, channel domain.VerificationChannel) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateRoles(ctx context.Context, userID string, roles []string) error
}
