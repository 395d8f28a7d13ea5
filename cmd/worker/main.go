package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/joshowusu-alt/tillflow/internal/app"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/businesses"
	"github.com/joshowusu-alt/tillflow/internal/momo"
	"github.com/joshowusu-alt/tillflow/internal/platform/cache"
	"github.com/joshowusu-alt/tillflow/internal/platform/db"
	"github.com/joshowusu-alt/tillflow/internal/risk"
	"github.com/joshowusu-alt/tillflow/internal/shared"
	"github.com/joshowusu-alt/tillflow/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	settingsRepo := businesses.NewRepository(pool)

	riskRepo := risk.NewRepository(pool)
	riskService := risk.NewService(riskRepo, settingsRepo, logger)

	momoRepo := momo.NewRepository(pool)
	momoProvider := momo.NewHTTPProvider(cfg.MomoBaseURL, cfg.MomoAPIKey, cfg.MomoTimeout)
	momoService := momo.NewService(momoRepo, momoProvider, redisClient, auditLogger, logger, cfg.MomoWebhookSecret)

	riskTask, err := jobs.NewRiskScanTask(jobs.RiskScanPayload{})
	if err != nil {
		logger.Error("build risk scan task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewMomoReconcileTask(jobs.MomoReconcilePayload{})
	if err != nil {
		logger.Error("build momo reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRiskScanSales, Handler: jobs.NewRiskScanHandler(riskService, settingsRepo, logger)},
			{Type: jobs.TaskMomoReconcile, Handler: jobs.NewMomoReconcileHandler(momoService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: riskTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/5 * * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
