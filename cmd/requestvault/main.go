package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/requestvault/requestvault/internal/apikeys"
	"github.com/requestvault/requestvault/internal/app"
	"github.com/requestvault/requestvault/internal/auth"
	"github.com/requestvault/requestvault/internal/files"
	"github.com/requestvault/requestvault/internal/notify"
	"github.com/requestvault/requestvault/internal/observability"
	"github.com/requestvault/requestvault/internal/platform/cache"
	"github.com/requestvault/requestvault/internal/platform/db"
	"github.com/requestvault/requestvault/internal/rbac"
	"github.com/requestvault/requestvault/internal/requests"
	"github.com/requestvault/requestvault/internal/shared"
	"github.com/requestvault/requestvault/internal/users"
	"github.com/requestvault/requestvault/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	guard := rbac.Middleware{Logger: logger}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL, cfg.PendingTTL)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokens, logger)
	authHandler := auth.NewHandler(logger, authService)

	notifyRepo := notify.NewRepository(pool)
	notifyService := notify.NewService(notifyRepo, redisClient, asynqClient, logger)
	notifyHandler := notify.NewHandler(logger, notifyService)

	reviewRecorder := shared.NewReviewRecorder(pool, logger)
	requestsRepo := requests.NewRepository(pool)
	requestsService := requests.NewService(requestsRepo, reviewRecorder, notifyService, logger)
	requestsHandler := requests.NewHandler(logger, requestsService, &guard)

	store, err := files.NewDiskStore(cfg.FileStorageDir)
	if err != nil {
		logger.Error("init file storage", slog.Any("error", err))
		os.Exit(1)
	}
	filesRepo := files.NewRepository(pool)
	filesService := files.NewService(filesRepo, store, logger)
	filesHandler := files.NewHandler(logger, filesService, &guard)

	apiKeyRepo := apikeys.NewRepository(pool)
	apiKeyService := apikeys.NewService(apiKeyRepo, logger)
	apiKeyHandler := apikeys.NewHandler(logger, apiKeyService, &guard)

	auditLogger := shared.NewAuditLogger(pool, logger)
	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, &guard)

	rbacHandler := rbac.NewHandler(guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthService:     authService,
		APIKeyService:   apiKeyService,
		AuthHandler:     authHandler,
		RequestsHandler: requestsHandler,
		FilesHandler:    filesHandler,
		APIKeysHandler:  apiKeyHandler,
		UsersHandler:    usersHandler,
		NotifyHandler:   notifyHandler,
		RBACHandler:     rbacHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
