// Package users implements administrative account management: listing,
// creation with a role-derived permission snapshot, role and permission
// changes, activation toggles, and deletion.
package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestvault/requestvault/internal/auth"
	"github.com/requestvault/requestvault/internal/platform/db"
	"github.com/requestvault/requestvault/internal/platform/httpx"
)

// Repository defines persistence for account administration.
type Repository interface {
	List(ctx context.Context, limit, offset int) ([]auth.Account, int, error)
	FindByID(ctx context.Context, id int64) (*auth.Account, error)
	Create(ctx context.Context, account *auth.Account) (*auth.Account, error)
	UpdateName(ctx context.Context, id int64, name string) error
	UpdateRole(ctx context.Context, id int64, role string, permissions []string) error
	UpdatePermissions(ctx context.Context, id int64, permissions []string) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

const accountColumns = `id, email, name, password_hash, role, permissions, is_active,
	COALESCE(totp_secret, ''), totp_enabled, last_login_at, created_at, updated_at`

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var account auth.Account
	err := row.Scan(
		&account.ID, &account.Email, &account.Name, &account.PasswordHash,
		&account.Role, &account.Permissions, &account.IsActive,
		&account.TOTPSecret, &account.TOTPEnabled, &account.LastLoginAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// List returns a page of accounts plus the total count.
func (r *PGRepository) List(ctx context.Context, limit, offset int) ([]auth.Account, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []auth.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// FindByID loads one account.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// Create inserts an account. A duplicate email maps to ErrConflict.
func (r *PGRepository) Create(ctx context.Context, account *auth.Account) (*auth.Account, error) {
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

// UpdateName rewrites the display name.
func (r *PGRepository) UpdateName(ctx context.Context, id int64, name string) error {
	return r.exec(ctx, `UPDATE accounts SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
}

// UpdateRole rewrites the role together with its permission snapshot.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, role string, permissions []string) error {
	return r.exec(ctx, `UPDATE accounts SET role = $2, permissions = $3, updated_at = NOW() WHERE id = $1`, id, role, permissions)
}

// UpdatePermissions rewrites the stored permission set only.
func (r *PGRepository) UpdatePermissions(ctx context.Context, id int64, permissions []string) error {
	return r.exec(ctx, `UPDATE accounts SET permissions = $2, updated_at = NOW() WHERE id = $1`, id, permissions)
}

// SetActive toggles the account.
func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.exec(ctx, `UPDATE accounts SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

// Delete removes the account and everything it owns in one transaction.
// Requests the account reviewed but does not own survive with the reviewer
// reference cleared; their terminal status and timestamps stay untouched.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	err := db.WithTx(ctx, r.pool, pgx.RepeatableRead, func(tx pgx.Tx) error {
		for _, query := range []string{
			`DELETE FROM api_keys WHERE account_id = $1`,
			`DELETE FROM notifications WHERE account_id = $1`,
			`DELETE FROM files WHERE owner_id = $1`,
			`DELETE FROM requests WHERE requester_id = $1`,
			`UPDATE requests SET reviewer_id = NULL WHERE reviewer_id = $1`,
		} {
			if _, err := tx.Exec(ctx, query, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return httpx.ErrConflict
		}
		return err
	}
	return nil
}

func (r *PGRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
