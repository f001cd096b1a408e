package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger/memory"
	"expensetracker/internal/sheets"
	sheetsmem "expensetracker/internal/sheets/memory"
)

type flakyMirror struct {
	*sheetsmem.Mirror
	err error
}

func (f *flakyMirror) AppendRow(ctx context.Context, row sheets.LedgerRow) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.Mirror.AppendRow(ctx, row)
}

func insert(t *testing.T, store *memory.Store, owner, category string, cents int64, day int) int64 {
	t.Helper()
	id, err := store.InsertExpense(context.Background(), core.ExpenseRecord{
		Owner:     owner,
		Category:  category,
		Amount:    core.Money{Cents: cents},
		Currency:  core.DefaultCurrency,
		Timestamp: time.Date(2024, 4, day, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("InsertExpense() error = %v", err)
	}
	return id
}

func TestExportWorker_HandleEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	mirror := sheetsmem.New()
	w := NewExportWorker(store, mirror)

	id := insert(t, store, "alice", "Food", 4200, 3)

	if err := w.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.EventExpenseCreated, "alice", id)); err != nil {
		t.Fatalf("HandleEvent(created) error = %v", err)
	}
	// Redelivery must not duplicate the row.
	if err := w.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.EventExpenseCreated, "alice", id)); err != nil {
		t.Fatalf("HandleEvent(created again) error = %v", err)
	}

	rows, _ := mirror.ListRows(ctx)
	if len(rows) != 1 || rows[0].ExpenseID != id || rows[0].Amount.Cents != 4200 {
		t.Fatalf("mirror rows = %+v", rows)
	}
	if !rows[0].Date.Equal(core.NewDate(2024, 4, 3)) {
		t.Errorf("row date = %v, want 2024-04-03", rows[0].Date)
	}

	if err := w.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.EventExpenseDeleted, "alice", id)); err != nil {
		t.Fatalf("HandleEvent(deleted) error = %v", err)
	}
	if rows, _ := mirror.ListRows(ctx); len(rows) != 0 {
		t.Errorf("mirror rows after delete = %+v", rows)
	}
}

func TestExportWorker_HandleEvent_MissingExpense(t *testing.T) {
	mirror := sheetsmem.New()
	w := NewExportWorker(memory.New(nil), mirror)

	if err := w.HandleEvent(context.Background(), amqp.NewLedgerEvent(amqp.EventExpenseCreated, "alice", 99)); err != nil {
		t.Fatalf("HandleEvent() error = %v, want nil for a vanished expense", err)
	}
	if rows, _ := mirror.ListRows(context.Background()); len(rows) != 0 {
		t.Errorf("mirror rows = %+v, want none", rows)
	}
}

func TestExportWorker_HandleEvent_MirrorFailure(t *testing.T) {
	store := memory.New(nil)
	id := insert(t, store, "alice", "Food", 100, 1)
	cause := &core.StoreError{Op: "sheets append row", Err: errors.New("503")}
	w := NewExportWorker(store, &flakyMirror{Mirror: sheetsmem.New(), err: cause})

	err := w.HandleEvent(context.Background(), amqp.NewLedgerEvent(amqp.EventExpenseCreated, "alice", id))
	if !core.IsRetryable(err) {
		t.Errorf("HandleEvent() error = %v, want retryable", err)
	}
}

func TestExportWorker_HandleEvent_UnknownType(t *testing.T) {
	w := NewExportWorker(memory.New(nil), sheetsmem.New())
	ev := &amqp.LedgerEvent{Type: "expense.updated", Owner: "alice", ExpenseID: 1}
	if err := w.HandleEvent(context.Background(), ev); err == nil {
		t.Error("HandleEvent() with unknown type should fail")
	}
}

func TestExportWorker_Reconcile(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	mirror := sheetsmem.New()
	w := NewExportWorker(store, mirror)

	a1 := insert(t, store, "alice", "Food", 100, 1)
	a2 := insert(t, store, "alice", "Rent", 200, 2)
	b1 := insert(t, store, "bob", "Travel", 300, 3)

	// Stale row for a record that no longer exists.
	if _, err := mirror.AppendRow(ctx, sheets.LedgerRow{ExpenseID: 999, Owner: "bob"}); err != nil {
		t.Fatal(err)
	}
	// Already mirrored.
	rec, _ := store.GetExpense(ctx, "alice", a1)
	if _, err := mirror.AppendRow(ctx, sheets.RowFromExpense(rec)); err != nil {
		t.Fatal(err)
	}

	res, err := w.Reconcile(ctx, "alice")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Appended != 2 || res.Deleted != 1 {
		t.Errorf("Reconcile() = %+v, want 2 appended and 1 deleted", res)
	}

	rows, _ := mirror.ListRows(ctx)
	got := map[int64]bool{}
	for _, r := range rows {
		got[r.ExpenseID] = true
	}
	if len(rows) != 3 || !got[a1] || !got[a2] || !got[b1] {
		t.Errorf("mirror rows = %+v, want ids %d %d %d", rows, a1, a2, b1)
	}

	again, err := w.Reconcile(ctx)
	if err != nil || again != (ReconcileResult{}) {
		t.Errorf("second Reconcile() = %+v, %v; want no changes", again, err)
	}
}
