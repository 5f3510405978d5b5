package repository

import (
	"context"

	"rdx-auth/internal/verification/domain"
)

// Repository defines persistence for verification challenges.
type Repository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	// GetActive returns the newest unconsumed, unexpired challenge for the
	// subject on the given channel, or nil if none exists.
	GetActive(ctx context.Context, channel domain.Channel, subject string) (*domain.Challenge, error)
	// IncrementAttempts bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// Consume marks the challenge consumed if it is still unconsumed and
	// unexpired. Returns false if another caller got there first.
	Consume(ctx context.Context, id string) (bool, error)
	// InvalidateActive consumes all outstanding challenges for the subject so
	// a newly issued code is the only one that can succeed.
	InvalidateActive(ctx context.Context, channel domain.Channel, subject string) error
}
