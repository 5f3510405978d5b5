package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rdx-auth/internal/verification/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository backed by Postgres.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_challenges (id, channel, subject, code_hash, attempts, consumed, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Channel, c.Subject, c.CodeHash, c.Attempts, c.Consumed, c.ExpiresAt, c.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) GetActive(ctx context.Context, channel domain.Channel, subject string) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, channel, subject, code_hash, attempts, consumed, expires_at, created_at
		FROM verification_challenges
		WHERE channel = $1 AND subject = $2 AND NOT consumed AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`,
		channel, subject, time.Now().UTC(),
	)
	var c domain.Challenge
	err := row.Scan(&c.ID, &c.Channel, &c.Subject, &c.CodeHash, &c.Attempts, &c.Consumed, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE verification_challenges SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts`, id)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_challenges SET consumed = TRUE
		WHERE id = $1 AND NOT consumed AND expires_at > $2`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) InvalidateActive(ctx context.Context, channel domain.Channel, subject string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE verification_challenges SET consumed = TRUE
		WHERE channel = $1 AND subject = $2 AND NOT consumed`,
		channel, subject,
	)
	return err
}
