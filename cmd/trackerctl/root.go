package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"expensetracker/internal/amqp"
	"expensetracker/internal/backend"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	applog "expensetracker/internal/log"
)

// app holds what every subcommand needs. Tests preset cfg and store.
type app struct {
	cfg       *config.Config
	store     ledger.Store
	cleanup   backend.CleanupFunc
	publisher *amqp.Client
	svc       *cli.Services
	now       func() time.Time

	flagOwner   string
	flagDB      string
	flagVerbose bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "trackerctl",
		Short:         "Expense tracker administration",
		Long:          "Run recurring catch-up, print reports and export an owner's ledger.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.flagOwner, "owner", "o", "", "Ledger owner")
	root.PersistentFlags().StringVar(&a.flagDB, "db", "", "SQLite database path (overrides SQLITE_DB_PATH)")
	root.PersistentFlags().BoolVarP(&a.flagVerbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newApplyRecurringCmd(a),
		newReportCmd(a),
		newPredictCmd(a),
		newBudgetsCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if a.flagVerbose {
		level = slog.LevelDebug
	}
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    "text",
		Component: "trackerctl",
		Output:    cmd.ErrOrStderr(),
	})
	applog.SetDefault(logger)

	if a.now == nil {
		a.now = time.Now
	}
	if a.cfg == nil {
		cli.LoadEnvFile()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if a.flagDB != "" {
			cfg.DataBackend = string(backend.SQLiteBackend)
			cfg.SQLiteDBPath = a.flagDB
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		a.cfg = cfg
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.store == nil {
		bcfg, err := backend.FromAppConfig(a.cfg)
		if err != nil {
			return err
		}
		res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.store, a.cleanup = res.Store, res.Cleanup
	}

	a.publisher = cli.ConnectAMQP(ctx, logger, a.cfg)
	a.svc = cli.BuildServices(a.cfg, a.store, a.publisher)
	return nil
}

func (a *app) close() {
	if a.publisher != nil {
		_ = a.publisher.Close()
		a.publisher = nil
	}
	if a.cleanup != nil {
		_ = a.cleanup()
		a.cleanup = nil
	}
}

func (a *app) owner() (string, error) {
	if a.flagOwner == "" {
		return "", &core.ValidationError{Field: "owner", Err: core.ErrEmptyOwner}
	}
	return a.flagOwner, nil
}

func (a *app) today() core.Date {
	return core.DateOf(a.now())
}
