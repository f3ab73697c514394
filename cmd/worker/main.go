package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/requestvault/requestvault/internal/app"
	"github.com/requestvault/requestvault/internal/files"
	jobmetrics "github.com/requestvault/requestvault/internal/jobs"
	"github.com/requestvault/requestvault/internal/platform/db"
	"github.com/requestvault/requestvault/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store, err := files.NewDiskStore(cfg.FileStorageDir)
	if err != nil {
		logger.Error("init file storage", slog.Any("error", err))
		os.Exit(1)
	}
	filesRepo := files.NewRepository(pool)
	filesService := files.NewService(filesRepo, store, logger)

	metrics := jobmetrics.NewMetrics(nil)

	mailer := jobs.SMTPMailer{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	emailJob := jobs.NewNotificationEmailJob(pool, mailer, logger, metrics)
	sweepJob := jobs.NewFileSweepJob(filesService, logger, metrics)

	sweepTask, err := jobs.NewFileSweepTask(cfg.FileSweepBatch)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeNotificationEmail, Handler: emailJob.Handle},
			{Type: jobs.TaskTypeFileSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.FileSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
