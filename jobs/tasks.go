// Package jobs defines the background task types processed by the worker.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotificationEmail delivers a notification by email.
	TaskTypeNotificationEmail = "notify:email"
	// TaskTypeFileSweep removes expired temporary files.
	TaskTypeFileSweep = "files:sweep"
)

// NotificationEmailPayload describes an email delivery for one notification.
type NotificationEmailPayload struct {
	AccountID int64  `json:"account_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// NewNotificationEmailTask constructs an Asynq task.
func NewNotificationEmailTask(payload NotificationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotificationEmail, data), nil
}

// FileSweepPayload bounds one sweep run.
type FileSweepPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewFileSweepTask constructs an Asynq task.
func NewFileSweepTask(batchSize int) (*asynq.Task, error) {
	data, err := json.Marshal(FileSweepPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeFileSweep, data), nil
}
