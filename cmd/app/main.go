package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"quoteflow/internal/adapters/cli"
	"quoteflow/internal/app"
	"quoteflow/internal/clock"
	"quoteflow/internal/config"
	"quoteflow/internal/core"
	"quoteflow/internal/db"
	"quoteflow/internal/logger"
)

func main() {
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, cli.Usage)
		os.Exit(2)
	}

	// CLI output goes to stdout; keep the logger quiet unless asked otherwise.
	level := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	zl, err := logger.New(cfg.Environment, level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	clk := clock.System{}
	catalogService := core.NewCatalogService(pool)
	inventoryService := core.NewInventoryService(pool)
	docService := core.NewDocumentService(pool)
	approvalService := core.NewApprovalService(pool, inventoryService, docService, zl, core.WithClock(clk))
	monitor := core.NewStaleQuoteMonitor(approvalService, core.StaleMonitorConfig{
		Threshold:   cfg.StaleAfter,
		Concurrency: cfg.BulkResolveConcurrency,
		Clock:       clk,
		Log:         zl,
	})
	svc := app.NewAppService(catalogService, approvalService, inventoryService, monitor, clk, zl)

	if err := cli.Run(ctx, svc, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		zl.Debug("command failed", zap.Strings("args", os.Args[1:]), zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
