package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/joshowusu-alt/tillflow/internal/app"
	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/businesses"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/products"
	"github.com/joshowusu-alt/tillflow/internal/momo"
	"github.com/joshowusu-alt/tillflow/internal/platform/cache"
	"github.com/joshowusu-alt/tillflow/internal/platform/db"
	"github.com/joshowusu-alt/tillflow/internal/procurement"
	"github.com/joshowusu-alt/tillflow/internal/risk"
	"github.com/joshowusu-alt/tillflow/internal/sales"
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

	validate := validator.New()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	reasonRegistry := shared.NewReasonRegistry(pool, redisClient)

	productRepo := products.NewRepository(pool)
	settingsRepo := businesses.NewRepository(pool)

	riskRepo := risk.NewRepository(pool)
	riskService := risk.NewService(riskRepo, settingsRepo, logger)
	riskHandler := risk.NewHandler(logger, riskService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, validate)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, productRepo, auditLogger, reasonRegistry)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, validate)

	drawerRepo := drawer.NewRepository(pool)
	drawerService := drawer.NewService(drawerRepo, auditLogger, riskService)
	drawerHandler := drawer.NewHandler(logger, drawerService, validate)

	momoRepo := momo.NewRepository(pool)
	momoProvider := momo.NewHTTPProvider(cfg.MomoBaseURL, cfg.MomoAPIKey, cfg.MomoTimeout)
	momoService := momo.NewService(momoRepo, momoProvider, redisClient, auditLogger, logger, cfg.MomoWebhookSecret)
	momoHandler := momo.NewHandler(logger, momoService, validate)

	salesService := sales.NewService(sales.Deps{
		UoW:       sales.NewUnitOfWork(pool),
		Reads:     sales.NewReadRepository(pool),
		Products:  productRepo,
		Settings:  settingsRepo,
		Stock:     inventoryService,
		Approvals: approvalRecorder,
		Reasons:   reasonRegistry,
		Risk:      riskService,
		Audit:     auditLogger,
		Logger:    logger,
	})
	salesHandler := sales.NewHandler(logger, salesService, validate, shared.NewIdempotencyStore(pool))

	procurementService := procurement.NewService(procurement.NewUnitOfWork(pool), procurement.NewReadRepository(pool), auditLogger, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService, validate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SalesHandler:       salesHandler,
		ProcurementHandler: procurementHandler,
		InventoryHandler:   inventoryHandler,
		DrawerHandler:      drawerHandler,
		LedgerHandler:      ledgerHandler,
		MomoHandler:        momoHandler,
		RiskHandler:        riskHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
