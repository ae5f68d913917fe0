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

	"github.com/syrax68/gestion-pieces-sub001/internal/alerts"
	"github.com/syrax68/gestion-pieces-sub001/internal/app"
	"github.com/syrax68/gestion-pieces-sub001/internal/billing/creditnotes"
	"github.com/syrax68/gestion-pieces-sub001/internal/billing/invoices"
	"github.com/syrax68/gestion-pieces-sub001/internal/catalog/boutiques"
	"github.com/syrax68/gestion-pieces-sub001/internal/catalog/parts"
	"github.com/syrax68/gestion-pieces-sub001/internal/counts"
	"github.com/syrax68/gestion-pieces-sub001/internal/ledger"
	"github.com/syrax68/gestion-pieces-sub001/internal/platform/cache"
	"github.com/syrax68/gestion-pieces-sub001/internal/platform/db"
	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
	"github.com/syrax68/gestion-pieces-sub001/jobs"
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

	pool, err := db.New(ctx, db.PoolConfig{
		DSN:             cfg.PGDSN,
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		MaxConnLifetime: cfg.PGConnMaxLifetime,
		MaxConnIdleTime: cfg.PGConnMaxIdleTime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, alerts served uncached", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	sequencer := shared.NewDocumentSequencer(pool)
	engine := ledger.NewEngine()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, engine, auditLogger, idempotencyStore, sequencer)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	partsRepo := parts.NewRepository(pool)
	partsService := parts.NewService(partsRepo)
	partsHandler := parts.NewHandler(logger, partsService)

	boutiquesRepo := boutiques.NewRepository(pool)
	boutiquesService := boutiques.NewService(boutiquesRepo)
	boutiquesHandler := boutiques.NewHandler(logger, boutiquesService)

	invoiceRepo := invoices.NewRepository(pool, sequencer)
	invoiceService := invoices.NewService(invoiceRepo, engine, auditLogger, idempotencyStore)
	invoiceHandler := invoices.NewHandler(logger, invoiceService)

	creditNoteRepo := creditnotes.NewRepository(pool, sequencer)
	creditNoteService := creditnotes.NewService(creditNoteRepo, engine, auditLogger, idempotencyStore)
	creditNoteHandler := creditnotes.NewHandler(logger, creditNoteService)

	countsRepo := counts.NewRepository(pool, sequencer)
	countsService := counts.NewService(countsRepo, engine, auditLogger)
	countsHandler := counts.NewHandler(logger, countsService)

	alertsRepo := alerts.NewRepository(pool)
	alertsCache := alerts.NewCache(redisClient, cfg.AlertCacheTTL)
	alertsService := alerts.NewService(alertsRepo, alertsCache)
	alertsHandler := alerts.NewHandler(logger, alertsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		PartsHandler:      partsHandler,
		BoutiquesHandler:  boutiquesHandler,
		InvoiceHandler:    invoiceHandler,
		CreditNoteHandler: creditNoteHandler,
		CountsHandler:     countsHandler,
		AlertsHandler:     alertsHandler,
		JobHandler:        jobHandler,
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
