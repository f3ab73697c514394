package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/requestvault/requestvault/internal/jobs"
)

// Sweeper removes expired uploads, returning how many were purged.
type Sweeper interface {
	SweepExpired(ctx context.Context, batchSize int) (int, error)
}

// FileSweepJob purges expired temporary files on a schedule.
type FileSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewFileSweepJob wires dependencies for the sweep handler.
func NewFileSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *FileSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeFileSweep tasks.
func (j *FileSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("file sweep: handler not configured")
	}
	var payload FileSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BatchSize <= 0 {
		payload.BatchSize = 100
	}

	tracker := j.Metrics.Track(TaskTypeFileSweep)
	purged, err := j.Sweeper.SweepExpired(ctx, payload.BatchSize)
	if err = tracker.End(err); err != nil {
		j.Logger.Error("file sweep", slog.Any("error", err))
		return err
	}
	if purged > 0 {
		j.Logger.Info("file sweep", slog.Int("purged", purged))
	}
	return nil
}
