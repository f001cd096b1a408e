package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	applog "expensetracker/internal/log"
)

// EventPublisher announces ledger writes to downstream consumers.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, owner string, id int64) error
	PublishExpenseDeleted(ctx context.Context, owner string, id int64) error
}

// OwnerInvalidator drops cached reads for an owner after a write.
type OwnerInvalidator interface {
	InvalidateOwner(owner string)
}

type recurrenceStore interface {
	ledger.RecurrenceCatalog
	ledger.Transactor
}

// RecurrenceEngineConfig tunes store timeouts and boot-time parallelism.
type RecurrenceEngineConfig struct {
	// StoreTimeout bounds the work for a single definition (default: 10s).
	StoreTimeout time.Duration

	// Concurrency caps how many owners ApplyAll processes at once (default: 4).
	Concurrency int
}

func DefaultRecurrenceEngineConfig() RecurrenceEngineConfig {
	return RecurrenceEngineConfig{
		StoreTimeout: 10 * time.Second,
		Concurrency:  4,
	}
}

// RecurrenceEngine materializes due recurring expenses into the ledger.
type RecurrenceEngine struct {
	store       recurrenceStore
	publisher   EventPublisher
	invalidator OwnerInvalidator
	config      RecurrenceEngineConfig
	locks       *ownerLocks
}

// NewRecurrenceEngine creates an engine. publisher and invalidator may be nil.
func NewRecurrenceEngine(store recurrenceStore, publisher EventPublisher, invalidator OwnerInvalidator, config RecurrenceEngineConfig) *RecurrenceEngine {
	defaults := DefaultRecurrenceEngineConfig()
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = defaults.StoreTimeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	return &RecurrenceEngine{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		config:      config,
		locks:       newOwnerLocks(),
	}
}

// ApplyDue inserts one expense per elapsed period of every recurrence owned
// by owner, up to and including today, and returns how many were inserted.
//
// Each definition is caught up in its own transaction. Misconfigured
// definitions are logged and skipped; store failures roll back only their
// definition and are joined into the returned error.
func (e *RecurrenceEngine) ApplyDue(ctx context.Context, owner string, today core.Date) (int, error) {
	if strings.TrimSpace(owner) == "" {
		return 0, &core.ValidationError{Field: "owner", Err: core.ErrEmptyOwner}
	}
	if err := today.Validate(); err != nil {
		return 0, &core.ValidationError{Field: "today", Err: err}
	}

	unlock := e.locks.lock(owner)
	defer unlock()

	listCtx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defs, err := e.store.ListRecurrences(listCtx, owner)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list recurrences: %w", err)
	}

	var (
		inserted int
		skipped  int
		errs     []error
	)
	for _, def := range defs {
		ids, err := e.applyDefinition(ctx, owner, def.ID, today)
		var ce *core.ConfigurationError
		switch {
		case err == nil:
		case errors.As(err, &ce):
			skipped++
			slog.WarnContext(ctx, "Skipping misconfigured recurrence",
				applog.FieldOwner, owner,
				applog.FieldRecurrenceID, def.ID,
				applog.FieldInterval, string(def.Interval),
				applog.FieldErrorType, applog.ErrorTypeConfiguration,
				applog.FieldError, err)
			continue
		case errors.Is(err, core.ErrNotFound):
			// Deleted between listing and catch-up.
			continue
		default:
			slog.ErrorContext(ctx, "Recurrence catch-up failed, marker unchanged",
				applog.FieldOwner, owner,
				applog.FieldRecurrenceID, def.ID,
				applog.FieldError, err)
			errs = append(errs, fmt.Errorf("recurrence %d: %w", def.ID, err))
			continue
		}

		if len(ids) == 0 {
			continue
		}
		inserted += len(ids)
		slog.InfoContext(ctx, "Applied recurring expense",
			applog.FieldOwner, owner,
			applog.FieldRecurrenceID, def.ID,
			applog.FieldCategory, def.Category,
			applog.FieldInserted, len(ids))
		e.publishCreated(ctx, owner, ids)
	}

	if inserted > 0 && e.invalidator != nil {
		e.invalidator.InvalidateOwner(owner)
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		applog.FieldOwner, owner,
		applog.FieldToday, today.String(),
		"definitions", len(defs),
		applog.FieldInserted, inserted,
		"skipped", skipped,
		"failed", len(errs))

	return inserted, errors.Join(errs...)
}

// applyDefinition runs the read-compute-write cycle for one definition in
// a single transaction and returns the ids it inserted.
func (e *RecurrenceEngine) applyDefinition(ctx context.Context, owner string, id int64, today core.Date) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	var ids []int64
	err := e.store.WithinTx(ctx, func(tx ledger.Tx) error {
		ids = ids[:0]
		def, err := tx.GetRecurrence(ctx, owner, id)
		if err != nil {
			return err
		}
		due, err := DueDates(def, today)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}
		for _, d := range due {
			newID, err := tx.InsertExpense(ctx, core.ExpenseRecord{
				Owner:     owner,
				Category:  def.Category,
				Amount:    def.Amount,
				Currency:  core.DefaultCurrency,
				Timestamp: d.Time,
			})
			if err != nil {
				return err
			}
			ids = append(ids, newID)
		}
		return tx.UpdateLastApplied(ctx, owner, id, due[len(due)-1])
	})
	if errors.Is(err, ledger.ErrMarkerRegression) {
		return nil, &core.ConfigurationError{DefinitionID: id, Reason: "last applied date is ahead of the catch-up", Err: err}
	}
	if err != nil {
		return nil, core.WrapStore("apply recurrence", err)
	}
	return ids, nil
}

func (e *RecurrenceEngine) publishCreated(ctx context.Context, owner string, ids []int64) {
	if e.publisher == nil {
		return
	}
	for _, id := range ids {
		if err := e.publisher.PublishExpenseCreated(ctx, owner, id); err != nil {
			slog.WarnContext(ctx, "Failed to publish expense event",
				applog.FieldOwner, owner,
				applog.FieldExpenseID, id,
				applog.FieldError, err)
		}
	}
}

// ApplyAll runs ApplyDue for every owner with recurrences. Owners are
// processed in parallel; one owner's failure does not stop the others.
func (e *RecurrenceEngine) ApplyAll(ctx context.Context, today core.Date) (int, error) {
	owners, err := e.store.ListRecurrenceOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurrence owners: %w", err)
	}

	var (
		g     errgroup.Group
		total atomic.Int64
		mu    sync.Mutex
		errs  []error
	)
	g.SetLimit(e.config.Concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			n, err := e.ApplyDue(ctx, owner, today)
			total.Add(int64(n))
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(total.Load()), errors.Join(errs...)
}
