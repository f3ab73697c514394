package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestvault/requestvault/internal/platform/httpx"
)

// Filter narrows a listing.
type Filter struct {
	RequesterID *int64
	Status      *Status
	Type        *Type
	Page        int
	PerPage     int
}

// Repository defines persistence for approval requests.
type Repository interface {
	Create(ctx context.Context, req *Request) (*Request, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Request, error)
	UpdatePending(ctx context.Context, req *Request) (*Request, error)
	Review(ctx context.Context, id uuid.UUID, status Status, reviewerID int64, comment string) (*Request, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter Filter) ([]Request, int, error)
}

const requestColumns = `id, type, title, description, status, priority, metadata, requester_id, reviewer_id, reviewed_at, review_comment, created_at, updated_at`

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(
		&req.ID, &req.Type, &req.Title, &req.Description, &req.Status, &req.Priority,
		&req.Metadata, &req.RequesterID, &req.ReviewerID, &req.ReviewedAt, &req.ReviewComment,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Create inserts a new pending request.
func (r *PGRepository) Create(ctx context.Context, req *Request) (*Request, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO requests (id, type, title, description, status, priority, metadata, requester_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+requestColumns,
		req.ID, req.Type, req.Title, req.Description, req.Status, req.Priority, req.Metadata, req.RequesterID,
	)
	return scanRequest(row)
}

// FindByID loads one request.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	return scanRequest(row)
}

// UpdatePending rewrites the requester-editable fields. The update is
// conditional on the request still being pending so an edit can never land
// after a concurrent review.
func (r *PGRepository) UpdatePending(ctx context.Context, req *Request) (*Request, error) {
	row := r.pool.QueryRow(ctx, `UPDATE requests
SET title = $2, description = $3, priority = $4, metadata = $5, updated_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING `+requestColumns,
		req.ID, req.Title, req.Description, req.Priority, req.Metadata,
	)
	updated, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, r.pendingMiss(ctx, req.ID)
		}
		return nil, err
	}
	return updated, nil
}

// Review moves a pending request to a terminal state. The conditional WHERE
// serializes racing reviewers: exactly one update matches, the loser gets
// zero rows and observes the conflict.
func (r *PGRepository) Review(ctx context.Context, id uuid.UUID, status Status, reviewerID int64, comment string) (*Request, error) {
	row := r.pool.QueryRow(ctx, `UPDATE requests
SET status = $2, reviewer_id = $3, reviewed_at = NOW(), review_comment = NULLIF($4, ''), updated_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING `+requestColumns,
		id, status, reviewerID, comment,
	)
	reviewed, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, r.pendingMiss(ctx, id)
		}
		return nil, err
	}
	return reviewed, nil
}

// pendingMiss disambiguates a zero-row conditional update: the request is
// either gone (not found) or already reviewed (conflict).
func (r *PGRepository) pendingMiss(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM requests WHERE id = $1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httpx.ErrNotFound
		}
		return err
	}
	return fmt.Errorf("request already reviewed: %w", httpx.ErrConflict)
}

// Delete removes one request.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// List returns a filtered page plus the total match count.
func (r *PGRepository) List(ctx context.Context, filter Filter) ([]Request, int, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM requests`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s FROM requests%s
ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at DESC
LIMIT $%d OFFSET $%d`, requestColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

var _ Repository = (*PGRepository)(nil)
