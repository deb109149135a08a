package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"pricememory/internal/backend"
	"pricememory/internal/cli"
	"pricememory/internal/events"
	apphttp "pricememory/internal/http"
	"pricememory/internal/log"
	"pricememory/internal/middleware/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger(nil))
	logger := cli.SetupLogger(cfg)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	result, err := backend.NewFactory(logger, events.NewBroker()).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           cfg.Addr(),
		Purchases:      result.Purchases,
		Entry:          result.Entry,
		Logger:         logger,
		CurrencySymbol: cfg.CurrencySymbol,
		MaxPhotoBytes:  cfg.MaxPhotoBytes,
		PhotoCacheSize: cfg.PhotoCacheSize,
		PhotoCacheTTL:  cfg.PhotoCacheTTL,
		RateLimit:      ratelimit.DefaultConfig(),
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	var g errgroup.Group
	g.Go(func() error {
		logger.Info("Starting Price Memory",
			"addr", cfg.Addr(),
			"backend", cfg.DataBackend,
			"events_enabled", cfg.AMQPURL != "",
			"mirror_enabled", cfg.MirrorEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "addr", cfg.Addr())
		_ = result.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
