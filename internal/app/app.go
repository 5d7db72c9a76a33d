// Package app assembles the components shared by the rundown binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rundown/internal/backend"
	"rundown/internal/config"
	"rundown/internal/export/sheets"
	"rundown/internal/lock"
	"rundown/internal/log"
	"rundown/internal/rundown"
	"rundown/internal/services"
	"rundown/internal/worker"
)

// App holds the wired engine. Close releases everything Build opened.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Backend   *backend.Result
	Locker    lock.Locker
	Generator *services.Generator
	Scenarios *services.ScenarioService

	closers []func() error
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func NewLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	lc.Component = component
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// GeneratorConfig maps the environment onto generator settings.
func GeneratorConfig(cfg *config.Config) services.GeneratorConfig {
	gc := services.DefaultGeneratorConfig()
	gc.Concurrency = cfg.GenerationConcurrency
	gc.Options = rundown.Options{
		Predict: rundown.PredictOptions{
			Window:    cfg.PredictionWindow,
			MinPoints: cfg.PredictionMinPoints,
		},
		WarningThreshold: decimal.NewNullDecimal(decimal.NewFromInt(int64(cfg.WarningThresholdPct))),
	}
	return gc
}

// Build opens the configured backend and lock service and wires the
// generator and scenario service over them. The Sheets publisher is attached
// when a spreadsheet is configured.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Logger.With(log.FieldComponent, log.ComponentBackend)).Create(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	a.Backend = res
	a.closers = append(a.closers, res.Cleanup)

	if cfg.RedisAddr != "" {
		redisLock, closeRedis, err := lock.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		a.Locker = redisLock
		a.closers = append(a.closers, closeRedis)
		logger.Info("Using redis project locks", "redis_addr", cfg.RedisAddr, "ttl", cfg.LockTTL.String())
	} else {
		a.Locker = lock.NewLocal()
	}

	a.Generator = services.NewGenerator(res.Store, a.Locker, GeneratorConfig(cfg))
	a.Scenarios = services.NewScenarioService(res.Store, a.Generator)

	if cfg.SheetsPublishing() {
		pub, err := sheets.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, sheets.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("google sheets publisher: %w", err)
		}
		a.Generator.SetPublisher(pub)
		logger.Info("Publishing baseline profiles to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets publishing disabled - no GOOGLE_SPREADSHEET_ID provided")
	}
	built = true
	return a, nil
}

// Scheduler returns the daily batch scheduler, or nil when scheduling is off.
// SCHEDULE_TIME is read as UTC.
func (a *App) Scheduler() (*worker.Scheduler, error) {
	if !a.Config.ScheduleEnabled {
		return nil, nil
	}
	hour, minute, err := config.ParseClock(a.Config.ScheduleTime)
	if err != nil {
		return nil, err
	}
	return worker.NewScheduler(a.Generator, hour, minute, time.UTC), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] == nil {
			continue
		}
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
