package apikeys

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestvault/requestvault/internal/platform/httpx"
)

// KeyHolder is the account-side view needed to authenticate a key.
type KeyHolder struct {
	Key         APIKey
	Email       string
	Role        string
	Permissions []string
	IsActive    bool
}

// Repository defines persistence for API keys.
type Repository interface {
	Insert(ctx context.Context, key *APIKey) (*APIKey, error)
	FindByID(ctx context.Context, id uuid.UUID) (*APIKey, error)
	FindHolderByHash(ctx context.Context, hash string) (*KeyHolder, error)
	ListForAccount(ctx context.Context, accountID int64) ([]APIKey, error)
	ListAll(ctx context.Context) ([]APIKey, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context) (int64, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}

const keyColumns = `id, account_id, name, prefix, hash, last_used_at, created_at`

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanKey(row pgx.Row) (*APIKey, error) {
	var key APIKey
	err := row.Scan(&key.ID, &key.AccountID, &key.Name, &key.Prefix, &key.Hash, &key.LastUsedAt, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

// Insert stores a new key.
func (r *PGRepository) Insert(ctx context.Context, key *APIKey) (*APIKey, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO api_keys (id, account_id, name, prefix, hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+keyColumns,
		key.ID, key.AccountID, key.Name, key.Prefix, key.Hash,
	)
	return scanKey(row)
}

// FindByID loads one key.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*APIKey, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, id)
	return scanKey(row)
}

// FindHolderByHash resolves a presented token digest to the key and its
// owning account in one round trip.
func (r *PGRepository) FindHolderByHash(ctx context.Context, hash string) (*KeyHolder, error) {
	row := r.pool.QueryRow(ctx, `SELECT k.id, k.account_id, k.name, k.prefix, k.hash, k.last_used_at, k.created_at,
	a.email, a.role, a.permissions, a.is_active
FROM api_keys k
JOIN accounts a ON a.id = k.account_id
WHERE k.hash = $1`, hash)
	var holder KeyHolder
	err := row.Scan(
		&holder.Key.ID, &holder.Key.AccountID, &holder.Key.Name, &holder.Key.Prefix, &holder.Key.Hash,
		&holder.Key.LastUsedAt, &holder.Key.CreatedAt,
		&holder.Email, &holder.Role, &holder.Permissions, &holder.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &holder, nil
}

// ListForAccount returns one account's keys, newest first.
func (r *PGRepository) ListForAccount(ctx context.Context, accountID int64) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	return collectKeys(rows)
}

// ListAll returns every issued key.
func (r *PGRepository) ListAll(ctx context.Context) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+keyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectKeys(rows)
}

func collectKeys(rows pgx.Rows) ([]APIKey, error) {
	defer rows.Close()
	var out []APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes one key.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// DeleteAll removes every key and reports how many were purged.
func (r *PGRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM api_keys`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// TouchLastUsed stamps a successful authentication.
func (r *PGRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
