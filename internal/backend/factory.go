// Package backend builds the ports.Store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"rundown/internal/fixture"
	"rundown/internal/ports"
	"rundown/internal/storage"
	"rundown/internal/storage/memory"
)

// CleanupFunc releases the resources held by a backend
type CleanupFunc func() error

// Result contains the store and the hooks the binaries need around it
type Result struct {
	Store ports.Store
	// Ready reports whether the store can serve requests; used by /readyz.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
	// SQL is set for the sqlite and postgres backends.
	SQL *storage.SQLStore
}

// Factory creates backends based on configuration
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Create opens the configured backend.
func (f *Factory) Create(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SQLiteBackend:
		return f.createSQL(ctx, storage.SQLite, cfg.SQLiteDBPath, "db_path", cfg.SQLiteDBPath)
	case PostgresBackend:
		return f.createSQL(ctx, storage.Postgres, cfg.PostgresDSN, "dsn", "(redacted)")
	default:
		return f.createMemory(cfg)
	}
}

func (f *Factory) createSQL(ctx context.Context, dialect storage.Dialect, dsn, key, shown string) (*Result, error) {
	store, err := storage.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", dialect, err)
	}

	f.logger.Info("Initialized SQL backend", "dialect", dialect, key, shown)

	return &Result{
		Store:   store,
		Ready:   store.Ping,
		Cleanup: store.Close,
		SQL:     store,
	}, nil
}

func (f *Factory) createMemory(cfg Config) (*Result, error) {
	store := memory.New()
	if cfg.FixturePath != "" {
		data, err := fixture.Load(cfg.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
		store = memory.NewFromFixture(data)
		f.logger.Info("Initialized memory backend",
			"fixture", cfg.FixturePath,
			"projects", len(data.Projects),
			"events", len(data.Events))
	} else {
		f.logger.Info("Initialized empty memory backend")
	}

	return &Result{
		Store:   store,
		Ready:   func(context.Context) error { return nil },
		Cleanup: func() error { return nil },
	}, nil
}
