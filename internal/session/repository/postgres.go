package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rdx-auth/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, current_refresh_token_id, revoked_at, created_at
		FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, current_refresh_token_id, revoked_at, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
		s.ID, s.UserID, s.CurrentRefreshTokenID, s.RevokedAt, s.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, at,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`,
		userID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRefreshTokenByHash returns the refresh token with the given hash, or nil
// if not found. Revoked and replaced tokens are returned too; replay detection
// needs to see them.
func (r *PostgresRepository) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, user_id, token_hash, issued_at, expires_at, revoked, replaced_by
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	return scanRefreshToken(row)
}

func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertRefreshToken(ctx, tx, t); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET current_refresh_token_id = $2 WHERE id = $1`,
		t.SessionID, t.ID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// RotateRefreshToken links newToken after oldID in a single transaction.
// The conditional update on the old row is the rotation guard: a concurrent
// rotation or revocation makes it match zero rows and the whole rotation
// reports false without inserting anything.
func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, oldID string, newToken *domain.RefreshToken) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET replaced_by = $2
		WHERE id = $1 AND replaced_by IS NULL AND NOT revoked`,
		oldID, newToken.ID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}
	if err := insertRefreshToken(ctx, tx, newToken); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET current_refresh_token_id = $2 WHERE id = $1`,
		newToken.SessionID, newToken.ID,
	); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresRepository) RevokeChain(ctx context.Context, sessionID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE session_id = $1 AND NOT revoked`,
		sessionID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		sessionID, at,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRefreshToken(ctx context.Context, tx *sql.Tx, t *domain.RefreshToken) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, session_id, user_id, token_hash, issued_at, expires_at, revoked, replaced_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		t.ID, t.SessionID, t.UserID, t.TokenHash, t.IssuedAt, t.ExpiresAt, t.Revoked, t.ReplacedBy,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var current sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &current, &s.RevokedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.CurrentRefreshTokenID = current.String
	return &s, nil
}

func scanRefreshToken(row rowScanner) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	var replacedBy sql.NullString
	err := row.Scan(&t.ID, &t.SessionID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.Revoked, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.ReplacedBy = replacedBy.String
	return &t, nil
}
