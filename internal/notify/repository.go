package notify

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestvault/requestvault/internal/platform/httpx"
)

// Repository defines persistence for the notification inbox.
type Repository interface {
	Insert(ctx context.Context, n *Notification) (*Notification, error)
	ListForAccount(ctx context.Context, accountID int64, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, accountID, id int64) error
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert stores a notification row.
func (r *PGRepository) Insert(ctx context.Context, n *Notification) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO notifications (account_id, kind, message)
VALUES ($1, $2, $3)
RETURNING id, account_id, kind, message, read_at, created_at`,
		n.AccountID, n.Kind, n.Message,
	)
	var stored Notification
	if err := row.Scan(&stored.ID, &stored.AccountID, &stored.Kind, &stored.Message, &stored.ReadAt, &stored.CreatedAt); err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListForAccount returns the newest notifications for one account.
func (r *PGRepository) ListForAccount(ctx context.Context, accountID int64, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, account_id, kind, message, read_at, created_at FROM notifications WHERE account_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Kind, &n.Message, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead stamps a notification as read. Scoped to the owning account so
// one user can never acknowledge another's inbox.
func (r *PGRepository) MarkRead(ctx context.Context, accountID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = NOW() WHERE id = $1 AND account_id = $2 AND read_at IS NULL`, id, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httpx.ErrNotFound
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
