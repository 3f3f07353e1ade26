package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keystone-erp/keystone/internal/accounts"
	"github.com/keystone-erp/keystone/internal/app"
	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/platform/cache"
	"github.com/keystone-erp/keystone/internal/platform/db"
	"github.com/keystone-erp/keystone/internal/sequence"
	"github.com/keystone-erp/keystone/internal/shared"
	"github.com/keystone-erp/keystone/internal/stock"
	"github.com/keystone-erp/keystone/internal/voucher"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, account cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var uow db.UnitOfWork
	if cfg.BestEffort {
		uow = db.NewBestEffortRunner(pool, logger)
	} else {
		uow = db.NewTxRunner(pool)
	}

	registry, err := voucher.NewRegistry(voucher.DefaultHandlers(voucher.NewSQLBOMStore(pool))...)
	if err != nil {
		logger.Error("build handler registry", slog.Any("error", err))
		os.Exit(1)
	}

	resolver := accounts.NewResolver(accounts.NewSQLStore(), redisClient, cfg.AccountCacheTTL)
	service := voucher.NewService(voucher.ServiceParams{
		UnitOfWork:  uow,
		Store:       voucher.NewSQLStore(),
		Sequences:   sequence.NewGenerator(),
		Registry:    registry,
		Resolver:    resolver,
		Stock:       stock.NewEngine(stock.NewSQLStore()),
		Ledger:      ledger.NewEngine(ledger.NewSQLStore()),
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Logger:      logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		VoucherHandler: voucher.NewHTTPHandler(logger, service),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
