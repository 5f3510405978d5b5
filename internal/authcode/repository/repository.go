package repository

import (
	"context"

	"rdx-auth/internal/authcode/domain"
)

// Repository defines persistence for authorization codes.
type Repository interface {
	Create(ctx context.Context, c *domain.AuthorizationCode) error
	// Consume atomically marks the code with the given hash as used and
	// returns it. A code that is unknown, expired, or already consumed
	// returns (nil, nil); a code is redeemable exactly once.
	Consume(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error)
}
