package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"quoteflow/internal/config"
	"quoteflow/internal/db"
	"quoteflow/internal/logger"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migrations")
	flag.Parse()

	cfg := config.Load()
	zl, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("Failed to connect to DB", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, *dir, zl); err != nil {
		zl.Fatal("Migration failed", zap.Error(err))
	}
	zl.Info("Migration successful.")
}
