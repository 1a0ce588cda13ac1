package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/soaringjerry/hitlrate/internal/api"
	"github.com/soaringjerry/hitlrate/internal/config"
	"github.com/soaringjerry/hitlrate/internal/logging"
	"github.com/soaringjerry/hitlrate/internal/media"
	"github.com/soaringjerry/hitlrate/internal/middleware"
)

func main() {
	root := os.Getenv("HITL_ROOT")
	if root == "" {
		root = "."
	}
	loader, err := config.Load(root)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := loader.Config()

	logger, level, err := logging.New(logging.Options{
		Directory:  cfg.Logging.Directory,
		Level:      cfg.Logging.Level,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.UsingDevSecret() {
		logger.Warn("Using the built-in development JWT secret; set HITL_AUTH_JWT_SECRET in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}()

	storage, err := media.NewDiskStorage(cfg.Media.Dir, cfg.Media.MaxUploadBytes)
	if err != nil {
		logger.Fatal("Failed to init media storage", zap.Error(err))
	}

	cors := middleware.NewCORS(cfg.Server.CORSOrigins)
	loader.Watch(logger, func(next *config.Config) {
		if err := logging.SetLevel(level, next.Logging.Level); err != nil {
			logger.Error("Invalid log level in reloaded config", zap.Error(err))
		}
		cors.SetOrigins(next.Server.CORSOrigins)
	})

	router := api.NewRouter(api.Options{
		Store:          store,
		Storage:        storage,
		Auth:           middleware.NewAuthenticator(cfg.Auth.JWTSecret),
		CORS:           cors,
		Logger:         logger,
		TokenTTL:       cfg.Auth.TokenTTL,
		SchemaTTL:      cfg.Cache.SchemaTTL,
		CookieSecure:   cfg.Auth.CookieSecure,
		UploadMaxBytes: cfg.Upload.MaxBytes,
		Development:    cfg.Server.Development,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		logger.Info("HITL rating server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
