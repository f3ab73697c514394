package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) (*Account, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetTOTPSecret(ctx context.Context, id int64, secret string) error
	EnableTOTP(ctx context.Context, id int64) error
	DisableTOTP(ctx context.Context, id int64) error
}

const accountColumns = `id, email, name, password_hash, role, permissions, is_active,
	COALESCE(totp_secret, ''), totp_enabled, last_login_at, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var account Account
	var role string
	err := row.Scan(
		&account.ID, &account.Email, &account.Name, &account.PasswordHash,
		&role, &account.Permissions, &account.IsActive,
		&account.TOTPSecret, &account.TOTPEnabled, &account.LastLoginAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	account.Role = rbac.Role(role)
	return &account, nil
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// FindByID fetches an account by ID.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// CreateAccount inserts a new account. A duplicate email maps to ErrConflict.
func (r *PGRepository) CreateAccount(ctx context.Context, account *Account) (*Account, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO accounts (email, name, password_hash, role, permissions, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+accountColumns,
		account.Email, account.Name, account.PasswordHash,
		string(account.Role), account.Permissions, account.IsActive,
	)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, httpx.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

// UpdateLastLogin stamps the final login completion time.
func (r *PGRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET last_login_at = $2, updated_at = NOW() WHERE id = $1`, id, at.UTC())
	return err
}

// UpdatePassword replaces the stored credential hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// SetTOTPSecret stores an unconfirmed second-factor secret.
func (r *PGRepository) SetTOTPSecret(ctx context.Context, id int64, secret string) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET totp_secret = $2, totp_enabled = FALSE, updated_at = NOW() WHERE id = $1`, id, secret)
	return err
}

// EnableTOTP marks the stored secret as confirmed.
func (r *PGRepository) EnableTOTP(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET totp_enabled = TRUE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// DisableTOTP clears the second factor.
func (r *PGRepository) DisableTOTP(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET totp_secret = NULL, totp_enabled = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
