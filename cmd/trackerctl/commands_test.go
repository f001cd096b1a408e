package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"expensetracker/internal/config"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger/memory"
)

func newTestApp(t *testing.T) (*app, *memory.Store) {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	store := memory.New(nil)
	return &app{
		cfg:   cfg,
		store: store,
		now:   func() time.Time { return time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC) },
	}, store
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func seedExpense(t *testing.T, store *memory.Store, owner, category string, cents int64, day core.Date) {
	t.Helper()
	_, err := store.InsertExpense(context.Background(), core.ExpenseRecord{
		Owner:     owner,
		Category:  category,
		Amount:    core.Money{Cents: cents},
		Currency:  core.DefaultCurrency,
		Timestamp: day.Time,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestApplyRecurring(t *testing.T) {
	a, store := newTestApp(t)
	_, err := store.CreateRecurrence(context.Background(), core.RecurrenceDefinition{
		Owner:       "alice",
		Description: "Rent",
		Category:    "Rent",
		Amount:      core.Money{Cents: 120000},
		Interval:    core.Monthly,
		StartDate:   core.NewDate(2024, 3, 1),
	})
	if err != nil {
		t.Fatalf("create recurrence: %v", err)
	}

	out, err := run(t, a, "apply-recurring", "--owner", "alice")
	if err != nil {
		t.Fatalf("apply-recurring: %v", err)
	}
	if !strings.Contains(out, "Inserted 2 recurring expenses as of 2024-04-15") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, a, "apply-recurring")
	if err != nil {
		t.Fatalf("apply-recurring all owners: %v", err)
	}
	if !strings.Contains(out, "Inserted 0 ") {
		t.Errorf("second run output = %q, want nothing inserted", out)
	}

	if _, err := run(t, a, "apply-recurring", "--date", "15/04/2024"); err == nil {
		t.Error("expected error for malformed --date")
	}
}

func TestReport(t *testing.T) {
	a, store := newTestApp(t)
	seedExpense(t, store, "alice", "Food", 4550, core.NewDate(2024, 4, 2))
	seedExpense(t, store, "alice", "Rent", 120000, core.NewDate(2024, 4, 1))
	seedExpense(t, store, "bob", "Food", 999, core.NewDate(2024, 4, 3))

	out, err := run(t, a, "report", "--owner", "alice", "--year", "2024", "--month", "4")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, want := range []string{"alice 2024-04", "Total: 1245.50 (2 expenses)", "Rent      1200.00", "Food      45.50"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, a, "report", "--month", "4"); err == nil {
		t.Error("expected error without --owner")
	}
	if _, err := run(t, a, "report", "--owner", "alice", "--month", "13"); err == nil {
		t.Error("expected error for month 13")
	}
}

func TestPredictAndBudgets(t *testing.T) {
	a, store := newTestApp(t)

	out, err := run(t, a, "predict", "--owner", "alice")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !strings.Contains(out, "No spending in the last 3 months.") {
		t.Errorf("empty predict output = %q", out)
	}

	seedExpense(t, store, "alice", "Food", 3000, core.NewDate(2024, 3, 10))
	seedExpense(t, store, "alice", "Food", 9000, core.NewDate(2024, 4, 10))
	out, err = run(t, a, "predict", "--owner", "alice", "--months", "3")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !strings.Contains(out, "Food      30.00") {
		t.Errorf("predict output = %q, want Food at 30.00 from March only", out)
	}

	out, err = run(t, a, "budgets", "--owner", "alice")
	if err != nil {
		t.Fatalf("budgets: %v", err)
	}
	if !strings.Contains(out, "No budgets set.") {
		t.Errorf("budgets output = %q", out)
	}

	if err := store.UpsertBudget(context.Background(), core.BudgetDefinition{
		Owner: "alice", Category: "Food", MonthlyLimit: core.Money{Cents: 10000},
	}); err != nil {
		t.Fatalf("upsert budget: %v", err)
	}
	out, err = run(t, a, "budgets", "--owner", "alice")
	if err != nil {
		t.Fatalf("budgets: %v", err)
	}
	if !strings.Contains(out, "90.00") || !strings.Contains(out, "90% !") {
		t.Errorf("budgets output = %q, want Food at 90%% flagged", out)
	}
}

func TestExport(t *testing.T) {
	a, store := newTestApp(t)
	seedExpense(t, store, "alice", "Food", 300, core.NewDate(2024, 4, 1))

	out, err := run(t, a, "export", "--owner", "alice")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "ID,Category,Amount,Date" || !strings.HasSuffix(lines[1], ",Food,3.00,2024-04-01") {
		t.Errorf("export output =\n%s", out)
	}
}
