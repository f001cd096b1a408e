package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	applog "expensetracker/internal/log"
	"expensetracker/internal/sheets"
)

type mirror interface {
	sheets.LedgerMirror
	sheets.LedgerLister
}

// ExportWorker mirrors ledger changes into a spreadsheet. Events carry ids
// only, so every create is re-read from the store before it is written out.
type ExportWorker struct {
	store  ledger.ExpenseStore
	mirror mirror
}

func NewExportWorker(store ledger.ExpenseStore, m mirror) *ExportWorker {
	return &ExportWorker{store: store, mirror: m}
}

// HandleEvent applies one ledger event to the mirror. Transient failures
// come back retryable so the consumer requeues the delivery.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	logger := slog.With(
		applog.FieldComponent, applog.ComponentExporter,
		applog.FieldEventID, ev.EventID,
		applog.FieldOwner, ev.Owner,
		applog.FieldExpenseID, ev.ExpenseID)

	switch ev.Type {
	case amqp.EventExpenseCreated:
		rec, err := w.store.GetExpense(ctx, ev.Owner, ev.ExpenseID)
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before we got to it; the delete event cleans up.
			logger.InfoContext(ctx, "Expense gone before export, skipping")
			return nil
		}
		if err != nil {
			return core.WrapStore("get expense", err)
		}
		ref, err := w.mirror.AppendRow(ctx, sheets.RowFromExpense(rec))
		if err != nil {
			return fmt.Errorf("append row: %w", err)
		}
		logger.InfoContext(ctx, "Exported expense",
			"row_ref", ref,
			applog.FieldCategory, rec.Category,
			applog.FieldAmountCents, rec.Amount.Cents)
		return nil

	case amqp.EventExpenseDeleted:
		if err := w.mirror.DeleteRow(ctx, ev.ExpenseID); err != nil {
			return fmt.Errorf("delete row: %w", err)
		}
		logger.InfoContext(ctx, "Removed exported expense")
		return nil

	default:
		return fmt.Errorf("unsupported event type %q", ev.Type)
	}
}

// ReconcileResult counts the rows a reconcile pass changed.
type ReconcileResult struct {
	Appended int
	Deleted  int
}

// Reconcile brings the mirror in line with the store for every owner that
// already has rows plus the given owners. It recovers from events lost
// while the exporter was down.
func (w *ExportWorker) Reconcile(ctx context.Context, owners ...string) (ReconcileResult, error) {
	var res ReconcileResult

	rows, err := w.mirror.ListRows(ctx)
	if err != nil {
		return res, fmt.Errorf("list mirrored rows: %w", err)
	}
	mirrored := make(map[string]map[int64]struct{})
	for _, o := range owners {
		if o != "" {
			mirrored[o] = make(map[int64]struct{})
		}
	}
	for _, r := range rows {
		if mirrored[r.Owner] == nil {
			mirrored[r.Owner] = make(map[int64]struct{})
		}
		mirrored[r.Owner][r.ExpenseID] = struct{}{}
	}

	names := make([]string, 0, len(mirrored))
	for o := range mirrored {
		names = append(names, o)
	}
	sort.Strings(names)

	for _, owner := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		recs, err := w.store.QueryExpenses(ctx, owner, core.ExpenseFilter{})
		if err != nil {
			return res, core.WrapStore("query expenses", err)
		}

		live := make(map[int64]struct{}, len(recs))
		// Oldest first so appended rows keep ledger order.
		for i := len(recs) - 1; i >= 0; i-- {
			rec := recs[i]
			live[rec.ID] = struct{}{}
			if _, ok := mirrored[owner][rec.ID]; ok {
				continue
			}
			if _, err := w.mirror.AppendRow(ctx, sheets.RowFromExpense(rec)); err != nil {
				return res, fmt.Errorf("append row %d: %w", rec.ID, err)
			}
			res.Appended++
		}
		for id := range mirrored[owner] {
			if _, ok := live[id]; ok {
				continue
			}
			if err := w.mirror.DeleteRow(ctx, id); err != nil {
				return res, fmt.Errorf("delete row %d: %w", id, err)
			}
			res.Deleted++
		}
	}

	slog.InfoContext(ctx, "Mirror reconciled",
		applog.FieldComponent, applog.ComponentExporter,
		"owners", len(names),
		"appended", res.Appended,
		"deleted", res.Deleted)
	return res, nil
}
