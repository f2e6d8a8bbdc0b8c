package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mentorlink/internal/app"
	"mentorlink/internal/config"
	"mentorlink/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

// run blocks until ctx is cancelled, then shuts the application down.
func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv(config.EnvPrefix + "_CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	zapLogger, err := logger.New(logger.Options{
		Env:    cfg.Env,
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	application, err := app.NewApplication(ctx, cfg, zapLogger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	zapLogger.Info("shutdown signal received")

	shutdownTimeout := cfg.HTTP.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		zapLogger.Error("shutdown error", zap.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
