package main

import (
	"context"
	"time"

	"expensetracker/internal/cli"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig("recurring-worker")

	ctx := context.Background()
	backend := cli.OpenStore(ctx, logger, cfg)
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Store cleanup error", applog.FieldError, err)
		}
	}()

	// Events let ledger-exporter mirror what this worker inserts.
	publisher := cli.ConnectAMQP(ctx, logger, cfg)
	if publisher != nil {
		defer publisher.Close()
	}
	svc := cli.BuildServices(cfg, backend.Store, publisher)

	if cfg.RecurringInterval == 0 {
		today := core.DateOf(time.Now())
		n, err := svc.Recurrence.ApplyAll(ctx, today)
		if err != nil {
			logger.Error("Recurring pass finished with errors",
				applog.FieldToday, today.String(),
				applog.FieldInserted, n,
				applog.FieldError, err)
			return
		}
		logger.Info("Recurring pass complete",
			applog.FieldToday, today.String(),
			applog.FieldInserted, n)
		return
	}

	scheduler := services.NewRecurringScheduler(svc.Recurrence, services.RecurringSchedulerConfig{
		PollInterval: cfg.RecurringInterval,
	})

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		logger.Info("Shutting down recurring-worker", applog.FieldOperation, applog.OpShutdown)
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("Recurring scheduler did not stop cleanly", applog.FieldError, err)
		}
	})

	logger.Info("Recurring worker configured",
		"interval", cfg.RecurringInterval,
		"backend", cfg.DataBackend,
		"concurrency", cfg.CatchupConcurrency)
	if err := scheduler.Start(runCtx); err != nil {
		logger.Error("Failed to start recurring scheduler", applog.FieldError, err)
		return
	}

	cli.WaitForShutdown(runCtx, done)
}
