package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/requestvault/requestvault/jobs"
)

// channelFor returns the Redis pub/sub channel carrying one account's
// realtime notifications.
func channelFor(accountID int64) string {
	return fmt.Sprintf("notify:%d", accountID)
}

// event is the wire shape published on the pub/sub channel and written to
// the SSE stream.
type event struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Service persists notifications and fans them out. All delivery paths are
// best-effort: failures are logged and swallowed.
type Service struct {
	repo    Repository
	redis   *redis.Client
	asynq   *asynq.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewService constructs a Service. The redis and asynq clients may be nil;
// the corresponding delivery path is then skipped.
func NewService(repo Repository, redisClient *redis.Client, asynqClient *asynq.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		redis:   redisClient,
		asynq:   asynqClient,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Notify records and fans out a notification. It never returns an error:
// the triggering state transition must not block or roll back on delivery
// failure.
func (s *Service) Notify(accountID int64, kind, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	stored, err := s.repo.Insert(ctx, &Notification{AccountID: accountID, Kind: kind, Message: message})
	if err != nil {
		s.logger.Error("store notification", slog.Int64("account_id", accountID), slog.Any("error", err))
		return
	}

	s.publish(ctx, stored)
	s.enqueueEmail(stored)
}

func (s *Service) publish(ctx context.Context, n *Notification) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(event{ID: n.ID, Kind: n.Kind, Message: n.Message, CreatedAt: n.CreatedAt})
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, channelFor(n.AccountID), payload).Err(); err != nil {
		s.logger.Warn("publish notification", slog.Int64("account_id", n.AccountID), slog.Any("error", err))
	}
}

func (s *Service) enqueueEmail(n *Notification) {
	if s.asynq == nil {
		return
	}
	task, err := jobs.NewNotificationEmailTask(jobs.NotificationEmailPayload{
		AccountID: n.AccountID,
		Kind:      n.Kind,
		Message:   n.Message,
	})
	if err != nil {
		return
	}
	if _, err := s.asynq.Enqueue(task, asynq.Queue(jobs.QueueDefault)); err != nil {
		s.logger.Warn("enqueue notification email", slog.Int64("account_id", n.AccountID), slog.Any("error", err))
	}
}

// ListForAccount returns the account's inbox.
func (s *Service) ListForAccount(ctx context.Context, accountID int64, unreadOnly bool, limit int) ([]Notification, error) {
	return s.repo.ListForAccount(ctx, accountID, unreadOnly, limit)
}

// MarkRead acknowledges one notification.
func (s *Service) MarkRead(ctx context.Context, accountID, id int64) error {
	return s.repo.MarkRead(ctx, accountID, id)
}

var _ Notifier = (*Service)(nil)
