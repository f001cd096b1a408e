package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"expensetracker/internal/cli"
	"expensetracker/internal/core"
	apphttp "expensetracker/internal/http"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig("tracker")

	bootCtx := context.Background()
	backend := cli.OpenStore(bootCtx, logger, cfg)
	publisher := cli.ConnectAMQP(bootCtx, logger, cfg)
	svc := cli.BuildServices(cfg, backend.Store, publisher)

	// Catch every owner up before the first request is served.
	today := core.DateOf(time.Now())
	if n, err := svc.Recurrence.ApplyAll(bootCtx, today); err != nil {
		logger.Error("Boot catch-up finished with errors",
			applog.FieldOperation, applog.OpStartup,
			applog.FieldInserted, n,
			applog.FieldError, err)
	} else {
		logger.Info("Boot catch-up complete",
			applog.FieldToday, today.String(),
			applog.FieldInserted, n)
	}

	var scheduler *services.RecurringScheduler
	if cfg.RecurringInterval > 0 {
		scheduler = services.NewRecurringScheduler(svc.Recurrence, services.RecurringSchedulerConfig{
			PollInterval: cfg.RecurringInterval,
		})
	}
	svc.Caches.StartCleanup(cacheCleanupInterval)

	var pinger apphttp.Pinger
	if p, ok := backend.Store.(apphttp.Pinger); ok {
		pinger = p
	}
	srv := apphttp.NewServer(apphttp.Services{
		Expenses:   svc.Expenses,
		Catalog:    svc.Catalog,
		Analytics:  svc.Analytics,
		Budgets:    svc.Budgets,
		Recurrence: svc.Recurrence,
	}, apphttp.OptionsFromConfig(cfg, logger, pinger))

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				logger.Warn("Recurring scheduler did not stop cleanly", applog.FieldError, err)
			}
		}
		svc.Caches.Stop()
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := backend.Cleanup(); err != nil {
			logger.Error("Store cleanup error", applog.FieldError, err)
		}
	})

	// The boot pass above already covered today; the scheduler runs one
	// more immediately, which is a no-op once markers are current.
	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("Failed to start recurring scheduler", applog.FieldError, err)
		}
	}

	go func() {
		logger.Info("Starting expense tracker",
			"addr", srv.Addr,
			"backend", cfg.DataBackend,
			"amqp", cfg.AMQPEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", applog.FieldError, err, "addr", srv.Addr)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
