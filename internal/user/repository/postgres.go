package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"rdx-auth/internal/user/domain"
)

const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, given_name, family_name, phone_country_code, phone_number,
	date_of_birth, address_line1, address_line2, city, country, postcode,
	password_hash, roles, email_verified, phone_verified, created_at, updated_at`

// Create persists the user. Email and phone uniqueness is enforced by unique
// indexes; a violation maps to *domain.DuplicateError with the offending field.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		u.ID, u.Email, u.GivenName, u.FamilyName, u.Phone.CountryCode, u.Phone.Number,
		u.DateOfBirth, u.Address.Line1, u.Address.Line2, u.Address.City, u.Address.Country, u.Address.Postcode,
		u.PasswordHash, strings.Join(u.Roles, ","), u.EmailVerified, u.PhoneVerified, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "phone") {
				return &domain.DuplicateError{Field: "phone"}
			}
			return &domain.DuplicateError{Field: "email"}
		}
		return err
	}
	return nil
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user for email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

// GetByPhone returns the user for the given phone, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, countryCode, number string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE phone_country_code = $1 AND phone_number = $2`, countryCode, number)
	return scanUser(row)
}

// SetVerified marks the email or phone channel as verified for the user.
func (r *PostgresRepository) SetVerified(ctx context.Context, userID string, channel domain.VerificationChannel) error {
	col := "email_verified"
	if channel == domain.ChannelPhone {
		col = "phone_verified"
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+col+` = TRUE, updated_at = $2 WHERE id = $1`,
		userID, time.Now().UTC(),
	)
	return err
}

// UpdatePasswordHash sets the password hash for the user.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, time.Now().UTC(),
	)
	return err
}

// UpdateRoles replaces the user's role set. Takes effect in access tokens on the next refresh.
func (r *PostgresRepository) UpdateRoles(ctx context.Context, userID string, roles []string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET roles = $2, updated_at = $3 WHERE id = $1`,
		userID, strings.Join(roles, ","), time.Now().UTC(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var roles string
	err := row.Scan(
		&u.ID, &u.Email, &u.GivenName, &u.FamilyName, &u.Phone.CountryCode, &u.Phone.Number,
		&u.DateOfBirth, &u.Address.Line1, &u.Address.Line2, &u.Address.City, &u.Address.Country, &u.Address.Postcode,
		&u.PasswordHash, &roles, &u.EmailVerified, &u.PhoneVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if roles != "" {
		u.Roles = strings.Split(roles, ",")
	}
	return &u, nil
}
