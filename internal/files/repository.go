package files

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestvault/requestvault/internal/platform/httpx"
)

// Repository defines persistence for file metadata.
type Repository interface {
	Insert(ctx context.Context, f *File) (*File, error)
	FindByID(ctx context.Context, id uuid.UUID) (*File, error)
	ListForOwner(ctx context.Context, ownerID int64) ([]File, error)
	ListAll(ctx context.Context) ([]File, error)
	SetPublic(ctx context.Context, id uuid.UUID, public bool) (*File, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpired(ctx context.Context, limit int) ([]File, error)
}

const fileColumns = `id, owner_id, name, storage_name, content_type, size, checksum, is_public, expires_at, created_at, updated_at`

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanFile(row pgx.Row) (*File, error) {
	var f File
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.Name, &f.StorageName, &f.ContentType, &f.Size,
		&f.Checksum, &f.IsPublic, &f.ExpiresAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// Insert stores metadata for a new upload.
func (r *PGRepository) Insert(ctx context.Context, f *File) (*File, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO files (id, owner_id, name, storage_name, content_type, size, checksum, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+fileColumns,
		f.ID, f.OwnerID, f.Name, f.StorageName, f.ContentType, f.Size, f.Checksum, f.ExpiresAt,
	)
	return scanFile(row)
}

// FindByID loads one file's metadata.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*File, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	return scanFile(row)
}

// ListForOwner returns one account's files, newest first.
func (r *PGRepository) ListForOwner(ctx context.Context, ownerID int64) ([]File, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+fileColumns+` FROM files WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectFiles(rows)
}

// ListAll returns every file.
func (r *PGRepository) ListAll(ctx context.Context) ([]File, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+fileColumns+` FROM files ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectFiles(rows)
}

func collectFiles(rows pgx.Rows) ([]File, error) {
	defer rows.Close()
	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetPublic flips the visibility flag.
func (r *PGRepository) SetPublic(ctx context.Context, id uuid.UUID, public bool) (*File, error) {
	row := r.pool.QueryRow(ctx, `UPDATE files SET is_public = $2, updated_at = NOW() WHERE id = $1 RETURNING `+fileColumns, id, public)
	return scanFile(row)
}

// Delete removes the metadata row.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// ListExpired returns files past their expiry, oldest first, for the sweep.
func (r *PGRepository) ListExpired(ctx context.Context, limit int) ([]File, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+fileColumns+` FROM files
WHERE expires_at IS NOT NULL AND expires_at < NOW()
ORDER BY expires_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectFiles(rows)
}

var _ Repository = (*PGRepository)(nil)
