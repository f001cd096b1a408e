package memory

import (
	"context"
	"testing"

	"expensetracker/internal/core"
	"expensetracker/internal/sheets"
)

func TestMirrorAppendAndList(t *testing.T) {
	ctx := context.Background()
	m := New()

	row := sheets.RowFromExpense(core.ExpenseRecord{
		ID: 3, Owner: "alice", Category: "Food", Amount: core.Money{Cents: 123}, Currency: "INR",
	})
	ref, err := m.AppendRow(ctx, row)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, err = m.AppendRow(ctx, row)
	if err != nil || ref != "mem:1" {
		t.Fatalf("duplicate append: ref=%q err=%v", ref, err)
	}

	rows, _ := m.ListRows(ctx)
	if len(rows) != 1 || rows[0] != row {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	if _, err := m.AppendRow(ctx, sheets.LedgerRow{}); err == nil {
		t.Fatal("expected error for zero expense id")
	}
}

func TestMirrorDeleteRow(t *testing.T) {
	ctx := context.Background()
	m := New()
	for _, id := range []int64{1, 2, 3} {
		if _, err := m.AppendRow(ctx, sheets.LedgerRow{ExpenseID: id}); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.DeleteRow(ctx, 2); err != nil {
		t.Fatalf("DeleteRow() error = %v", err)
	}
	if err := m.DeleteRow(ctx, 99); err != nil {
		t.Fatalf("DeleteRow(missing) error = %v", err)
	}

	rows, _ := m.ListRows(ctx)
	if len(rows) != 2 || rows[0].ExpenseID != 1 || rows[1].ExpenseID != 3 {
		t.Fatalf("unexpected rows after delete: %+v", rows)
	}
}
