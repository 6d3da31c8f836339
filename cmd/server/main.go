package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	webAdapter "quoteflow/internal/adapters/web"
	"quoteflow/internal/app"
	"quoteflow/internal/clock"
	"quoteflow/internal/config"
	"quoteflow/internal/core"
	"quoteflow/internal/db"
	"quoteflow/internal/logger"
	"quoteflow/internal/metrics"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	m := metrics.Default(metrics.Config{ServiceName: "quoteflow", Environment: cfg.Environment})
	clk := clock.System{}

	catalogService := core.NewCatalogService(pool)
	inventoryService := core.NewInventoryService(pool)
	docService := core.NewDocumentService(pool)
	approvalService := core.NewApprovalService(pool, inventoryService, docService, zl,
		core.WithClock(clk),
		core.WithObserver(m),
	)
	monitor := core.NewStaleQuoteMonitor(approvalService, core.StaleMonitorConfig{
		Threshold:   cfg.StaleAfter,
		Concurrency: cfg.BulkResolveConcurrency,
		Clock:       clk,
		Log:         zl,
		Recorder:    m,
	})

	svc := app.NewAppService(catalogService, approvalService, inventoryService, monitor, clk, zl)
	handler := webAdapter.NewHandler(svc, cfg.AllowedOrigins, promhttp.Handler(), zl)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zl.Info("server starting", zap.String("port", cfg.ServerPort), zap.String("env", cfg.Environment))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zl.Fatal("server", zap.Error(err))
	}
	zl.Info("server stopped")
}
