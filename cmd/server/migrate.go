package main

import (
	"context"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/soaringjerry/hitlrate/internal/api"
	"github.com/soaringjerry/hitlrate/internal/config"
	dbstore "github.com/soaringjerry/hitlrate/internal/db"
)

// openStore builds the configured store. For sqlite it applies pending
// migrations first. The returned close func is never nil.
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (api.Store, func() error, error) {
	noop := func() error { return nil }
	if cfg.Driver == "memory" {
		log.Warn("Using in-memory store; data is lost on restart")
		return api.NewMemoryStore(), noop, nil
	}

	conn, err := dbstore.Open(cfg.Path)
	if err != nil {
		return nil, noop, err
	}
	if err := dbstore.RunMigrations(ctx, conn, cfg.MigrationsDir); err != nil {
		_ = conn.Close()
		return nil, noop, fmt.Errorf("run migrations: %w", err)
	}
	store, err := dbstore.NewStore(conn, log)
	if err != nil {
		_ = conn.Close()
		return nil, noop, fmt.Errorf("init sqlite store: %w", err)
	}
	log.Info("SQLite store ready", zap.String("path", cfg.Path))
	return store, conn.Close, nil
}
