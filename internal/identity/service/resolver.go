package service

import (
	"context"

	userdomain "rdx-auth/internal/user/domain"
)

// Claims is the identity projection returned to callers and embedded in
// access tokens at issuance time.
type Claims struct {
	Sub           string
	Email         string
	GivenName     string
	FamilyName    string
	Roles         []string
	EmailVerified bool
	PhoneVerified bool
}

// ResolverUserRepo is the minimal user repository needed by the resolver.
type ResolverUserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Resolver maps a user ID to role and profile claims. Pure read projection.
type Resolver struct {
	users ResolverUserRepo
}

// NewResolver returns a Resolver over the given user repository.
func NewResolver(users ResolverUserRepo) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the claims for the user, or ErrUserNotFound.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Claims, error) {
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return &Claims{
		Sub:           u.ID,
		Email:         u.Email,
		GivenName:     u.GivenName,
		FamilyName:    u.FamilyName,
		Roles:         roles,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
	}, nil
}

// ResolveRoles returns the role snapshot used in access tokens.
func (r *Resolver) ResolveRoles(ctx context.Context, userID string) ([]string, error) {
	c, err := r.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.Roles, nil
}
