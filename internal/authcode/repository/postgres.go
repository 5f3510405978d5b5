package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rdx-auth/internal/authcode/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an authorization-code repository backed by Postgres.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *domain.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes
			(id, code_hash, client_id, redirect_uri, scope, state, code_challenge, code_challenge_method, user_id, consumed, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.CodeHash, c.ClientID, c.RedirectURI, c.Scope, c.State,
		c.CodeChallenge, c.CodeChallengeMethod, c.UserID, c.Consumed, c.ExpiresAt, c.CreatedAt,
	)
	return err
}

// Consume flips the consumed flag with a conditional UPDATE so exactly one
// caller can redeem a given code; everyone else sees (nil, nil).
func (r *PostgresRepository) Consume(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE authorization_codes SET consumed = TRUE
		WHERE code_hash = $1 AND NOT consumed AND expires_at > $2
		RETURNING id, code_hash, client_id, redirect_uri, scope, state, code_challenge, code_challenge_method, user_id, consumed, expires_at, created_at`,
		codeHash, time.Now().UTC(),
	)
	var c domain.AuthorizationCode
	err := row.Scan(
		&c.ID, &c.CodeHash, &c.ClientID, &c.RedirectURI, &c.Scope, &c.State,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.UserID, &c.Consumed, &c.ExpiresAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
