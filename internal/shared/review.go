package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReviewAction enumerates review trail actions.
type ReviewAction string

const (
	// ReviewSubmit marks a submit action.
	ReviewSubmit ReviewAction = "SUBMIT"
	// ReviewApprove marks an approve action.
	ReviewApprove ReviewAction = "APPROVE"
	// ReviewDeny marks a deny action.
	ReviewDeny ReviewAction = "DENY"
)

// ReviewEvent represents a single review trail record.
type ReviewEvent struct {
	ID        int64        `json:"id"`
	RequestID uuid.UUID    `json:"request_id"`
	ActorID   int64        `json:"actor_id"`
	Action    ReviewAction `json:"action"`
	Note      string       `json:"note,omitempty"`
	At        time.Time    `json:"at"`
}

// ReviewRecorder persists the review trail for approval requests.
type ReviewRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReviewRecorder constructs ReviewRecorder.
func NewReviewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ReviewRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewRecorder{pool: pool, logger: logger}
}

// Record writes one trail entry.
func (r *ReviewRecorder) Record(ctx context.Context, ev ReviewEvent) error {
	if r == nil || r.pool == nil {
		return errors.New("review recorder not initialised")
	}
	if ev.RequestID == uuid.Nil {
		return errors.New("review request id required")
	}
	if ev.ActorID == 0 {
		return errors.New("review actor required")
	}
	if ev.Action == "" {
		return errors.New("review action required")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO review_events (request_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`, ev.RequestID, ev.ActorID, string(ev.Action), ev.Note, ev.At)
	if err != nil {
		r.logger.Error("record review event", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns the trail for one request, oldest first.
func (r *ReviewRecorder) List(ctx context.Context, requestID uuid.UUID) ([]ReviewEvent, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("review recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, actor_id, action, note, at
FROM review_events WHERE request_id=$1 ORDER BY at ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []ReviewEvent
	for rows.Next() {
		var ev ReviewEvent
		var action string
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.ActorID, &action, &ev.Note, &ev.At); err != nil {
			return nil, err
		}
		ev.Action = ReviewAction(action)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
