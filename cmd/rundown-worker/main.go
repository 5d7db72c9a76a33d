package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rundown/internal/amqp"
	"rundown/internal/app"
	"rundown/internal/config"
	"rundown/internal/log"
	"rundown/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := app.NewLogger(cfg, log.ComponentWorker)
	logger.Info("Starting rundown-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize rundown engine", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer a.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Regenerations outlive the consume loop so pending ones can drain.
	regenCtx, regenCancel := context.WithCancel(context.Background())
	defer regenCancel()
	consumer := worker.NewChangeConsumer(regenCtx, a.Generator, cfg.DebounceWindow)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := amqpClient.ConsumeProjectChanged(ctx, consumer.HandleProjectChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
		cancel()
	}()

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

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		logger.Info("Draining pending regenerations", "pending", consumer.Pending())
		consumer.Drain()
		consumer.Close()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
		regenCancel()
	}
}
