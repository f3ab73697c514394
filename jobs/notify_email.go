package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/requestvault/requestvault/internal/jobs"
)

// Mailer sends a single plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
}

// Send delivers one message.
func (m SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.From, to, subject, body)
	return smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg))
}

// NotificationEmailJob delivers notification emails to account holders.
type NotificationEmailJob struct {
	Pool    *pgxpool.Pool
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotificationEmailJob wires dependencies for the email handler.
func NewNotificationEmailJob(pool *pgxpool.Pool, mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationEmailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationEmailJob{Pool: pool, Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeNotificationEmail tasks.
func (j *NotificationEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Mailer == nil {
		return errors.New("notification email: handler not configured")
	}
	var payload NotificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeNotificationEmail)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var email string
	err := j.Pool.QueryRow(ctx, `SELECT email FROM accounts WHERE id = $1 AND is_active`, payload.AccountID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Account gone or deactivated since the notification fired.
			return nil
		}
		resultErr = err
		return resultErr
	}

	subject := "RequestVault: " + payload.Kind
	if err := j.Mailer.Send(ctx, email, subject, payload.Message); err != nil {
		j.Logger.Warn("send notification email",
			slog.Int64("account_id", payload.AccountID),
			slog.Any("error", err),
		)
		resultErr = err
		return resultErr
	}
	return nil
}
