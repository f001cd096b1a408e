package main

import (
	"context"
	"errors"
	"os"
	"time"

	"expensetracker/internal/cli"
	applog "expensetracker/internal/log"
	gsheet "expensetracker/internal/sheets/google"
	"expensetracker/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig("ledger-exporter")
	logger = logger.WithComponent(applog.ComponentExporter)

	if !cfg.AMQPEnabled() || !cfg.SheetsEnabled() {
		logger.Error("ledger-exporter needs both AMQP_URL and GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	bootCtx := context.Background()
	backend := cli.OpenStore(bootCtx, logger, cfg)
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Store cleanup error", applog.FieldError, err)
		}
	}()

	mirror, err := gsheet.New(bootCtx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets mirror", applog.FieldError, err)
		os.Exit(1)
	}
	if err := mirror.EnsureHeader(bootCtx); err != nil {
		logger.Error("Failed to prepare mirror sheet", applog.FieldError, err)
		os.Exit(1)
	}

	consumer := cli.ConnectAMQP(bootCtx, logger, cfg)
	if consumer == nil {
		os.Exit(1)
	}
	defer consumer.Close()

	exporter := worker.NewExportWorker(backend.Store, mirror)

	// Pick up whatever changed while no exporter was running.
	owners, err := backend.Store.ListRecurrenceOwners(bootCtx)
	if err != nil {
		logger.Warn("Failed to list owners for reconcile", applog.FieldError, err)
	}
	if res, err := exporter.Reconcile(bootCtx, owners...); err != nil {
		logger.Error("Startup reconcile failed", applog.FieldError, err)
	} else {
		logger.Info("Startup reconcile complete", "appended", res.Appended, "deleted", res.Deleted)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	go func() {
		err := consumer.Consume(ctx, exporter.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption stopped", applog.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
