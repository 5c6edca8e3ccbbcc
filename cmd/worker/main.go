package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/archivault/archivault/internal/app"
	"github.com/archivault/archivault/internal/audit"
	"github.com/archivault/archivault/internal/platform/db"
	"github.com/archivault/archivault/internal/rbac"
	"github.com/archivault/archivault/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rbacService := rbac.NewService(rbac.NewRepository(pool), logger)
	auditRepo := audit.NewRepository(pool)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCatalogCheck, Handler: jobs.CatalogCheckHandler(rbacService)},
			{Type: jobs.TaskAuditScan, Handler: jobs.AuditScanHandler(auditRepo, 24*time.Hour, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 1h", Task: jobs.NewCatalogCheckTask()},
			{Spec: "@daily", Task: jobs.NewAuditScanTask()},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
