package backend

import (
	"context"
	"fmt"
	"log/slog"

	"expensetracker/internal/ledger"
	"expensetracker/internal/ledger/memory"
	applog "expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentStorage),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(_ context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var store *memory.Store
	switch {
	case config.SeedCategories != nil:
		store = memory.New(config.SeedCategories)
	case config.SeedDir != "":
		store = memory.NewFromFiles(config.SeedDir)
	default:
		store = memory.New(ledger.DefaultCategories)
	}

	cats, _ := store.ListCategories(context.Background())
	f.logger.Info("Initialized memory backend", "categories", len(cats), "seed_dir", config.SeedDir)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}
