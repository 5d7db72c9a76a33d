package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rundown/internal/app"
	"rundown/internal/config"
	apphttp "rundown/internal/http"
	"rundown/internal/log"
	"rundown/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := app.NewLogger(cfg, log.ComponentApp)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize rundown engine", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Cleanup failed", log.FieldError, err)
		}
	}()

	consumer := worker.NewChangeConsumer(ctx, a.Generator, cfg.DebounceWindow)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Generator:       a.Generator,
		Scenarios:       a.Scenarios,
		Store:           a.Backend.Store,
		Notifier:        consumer,
		Ready:           a.Backend.Ready,
		Logger:          logger.WithComponent(log.ComponentHTTP),
		ProfileCacheTTL: cfg.ProfileCacheTTL,
	})
	a.Generator.OnRegenerated(srv.InvalidateProfiles)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	var wg sync.WaitGroup
	scheduler, err := a.Scheduler()
	if err != nil {
		logger.Error("Invalid schedule", log.FieldError, err, "schedule_time", cfg.ScheduleTime)
		os.Exit(1)
	}
	if scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	} else {
		logger.Info("Daily generation schedule disabled")
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting rundown server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		consumer.Close()
		wg.Wait()
		os.Exit(1)
	}

	// Accepted notifications are flushed before the context goes away.
	logger.Info("Flushing pending change notifications", "pending", consumer.Pending())
	consumer.Drain()
	consumer.Close()
	cancel()
	wg.Wait()
	logger.Info("Server stopped gracefully")
}
