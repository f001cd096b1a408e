// Package cli provides common CLI initialization utilities shared by
// cmd/tracker, cmd/recurring-worker, cmd/ledger-exporter and cmd/trackerctl.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"expensetracker/internal/amqp"
	"expensetracker/internal/backend"
	"expensetracker/internal/cache"
	"expensetracker/internal/config"
	"expensetracker/internal/ledger"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads the configuration, installs the default
// logger for component, and validates. It exits the process on failure.
func LoadAndValidateConfig(component string) (*config.Config, *applog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		logger := applog.Setup("info", "text", component)
		logger.Error("Failed to load configuration", applog.FieldError, err)
		os.Exit(1)
	}

	logger := applog.Setup(cfg.LogLevel, cfg.LogFormat, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenStore creates the configured backend or exits the process.
func OpenStore(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return res
}

// ConnectAMQP dials the broker when one is configured. A nil client means
// events are not published; the ledger keeps working without them.
func ConnectAMQP(ctx context.Context, logger *applog.Logger, cfg *config.Config) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP not configured, ledger events disabled")
		return nil
	}
	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		return nil
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client
}

// Services bundles the application services over one store.
type Services struct {
	Expenses   *services.ExpenseService
	Catalog    *services.CatalogService
	Analytics  *services.AnalyticsService
	Budgets    *services.BudgetEvaluator
	Recurrence *services.RecurrenceEngine
	Caches     *cache.Manager
}

// BuildServices wires the services. publisher may be nil.
func BuildServices(cfg *config.Config, store ledger.Store, publisher *amqp.Client) *Services {
	// A nil *amqp.Client must not reach the services as a non-nil interface.
	var pub services.EventPublisher
	if publisher != nil {
		pub = publisher
	}

	// A sqlite file may have writers in other processes.
	analytics := services.NewAnalyticsService(store, services.AnalyticsConfig{
		CacheWindows: cfg.DataBackend == string(backend.MemoryBackend),
		CacheSize:    cfg.CacheSize,
		CacheTTL:     cfg.CacheTTL,
		StoreTimeout: cfg.StoreTimeout,
	})
	caches := cache.NewManager()
	caches.Register(analytics.Cache())

	return &Services{
		Expenses:  services.NewExpenseService(store, pub, analytics),
		Catalog:   services.NewCatalogService(store),
		Analytics: analytics,
		Budgets:   services.NewBudgetEvaluator(store, analytics),
		Recurrence: services.NewRecurrenceEngine(store, pub, analytics, services.RecurrenceEngineConfig{
			StoreTimeout: cfg.StoreTimeout,
			Concurrency:  cfg.CatchupConcurrency,
		}),
		Caches: caches,
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
