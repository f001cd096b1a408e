package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "tracker.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func insert(t *testing.T, repo *SQLiteRepository, owner, category string, cents int64, ts time.Time) int64 {
	t.Helper()
	id, err := repo.InsertExpense(context.Background(), core.ExpenseRecord{
		Owner: owner, Category: category, Amount: core.Money{Cents: cents},
		Currency: core.DefaultCurrency, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("InsertExpense error = %v", err)
	}
	return id
}

func TestMigrationsSeedCategories(t *testing.T) {
	repo := newTestRepo(t)
	cats, err := repo.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories error = %v", err)
	}
	if len(cats) != len(ledger.DefaultCategories) {
		t.Errorf("ListCategories = %v, want %d defaults", cats, len(ledger.DefaultCategories))
	}

	// Re-opening runs migrations again without error.
	path := filepath.Join(t.TempDir(), "again.db")
	for i := 0; i < 2; i++ {
		r, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open %d error = %v", i, err)
		}
		r.Close()
	}
}

func TestSearchExpensesFilters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }

	insert(t, repo, "alice", "Food", 1500, at(1, 9))
	insert(t, repo, "alice", "Fast food", 800, at(10, 23))
	insert(t, repo, "alice", "Rent", 100000, at(5, 0))
	insert(t, repo, "bob", "Food", 999, at(2, 12))

	lo, hi := core.Money{Cents: 800}, core.Money{Cents: 1500}
	from, to := core.NewDate(2024, 3, 1), core.NewDate(2024, 3, 10)

	tests := []struct {
		name   string
		filter core.ExpenseFilter
		want   []int64
	}{
		{"no filter, newest first", core.ExpenseFilter{}, []int64{800, 100000, 1500}},
		{"category exact", core.ExpenseFilter{Category: "Food"}, []int64{1500}},
		{"keyword substring any case", core.ExpenseFilter{Keyword: "FOOD"}, []int64{800, 1500}},
		{"amount bounds inclusive", core.ExpenseFilter{MinAmount: &lo, MaxAmount: &hi}, []int64{800, 1500}},
		{"end date inclusive of whole day", core.ExpenseFilter{From: &from, To: &to}, []int64{800, 100000, 1500}},
		{"limit", core.ExpenseFilter{Limit: 2}, []int64{800, 100000}},
		{"like wildcards are literal", core.ExpenseFilter{Keyword: "%"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryExpenses(ctx, "alice", tt.filter)
			if err != nil {
				t.Fatalf("QueryExpenses error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if got[i].Amount.Cents != w {
					t.Errorf("record %d = %d, want %d", i, got[i].Amount.Cents, w)
				}
			}
		})
	}
}

func TestKeywordFoldingMatchesFilter(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	insert(t, repo, "alice", "Épicerie", 700, ts)
	rec := core.ExpenseRecord{Owner: "alice", Category: "Épicerie", Timestamp: ts}

	for _, kw := range []string{"Épi", "épi", "ÉPICERIE", "picerie"} {
		t.Run(kw, func(t *testing.T) {
			f := core.ExpenseFilter{Keyword: kw}
			got, err := repo.QueryExpenses(ctx, "alice", f)
			if err != nil {
				t.Fatalf("QueryExpenses error = %v", err)
			}
			if want := f.Matches(rec); (len(got) == 1) != want {
				t.Errorf("sqlite returned %d records, Matches() = %v", len(got), want)
			}
		})
	}
}

func TestExpenseRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	ts := time.Date(2024, 2, 29, 13, 45, 10, 0, time.UTC)
	id := insert(t, repo, "alice", "Health", 4599, ts)

	got, err := repo.GetExpense(ctx, "alice", id)
	if err != nil {
		t.Fatalf("GetExpense error = %v", err)
	}
	if !got.Timestamp.Equal(ts) || got.Currency != "INR" || got.Amount.Cents != 4599 {
		t.Errorf("GetExpense = %+v", got)
	}

	if _, err := repo.GetExpense(ctx, "bob", id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetExpense other owner = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteExpense(ctx, "bob", id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteExpense other owner = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteExpense(ctx, "alice", id); err != nil {
		t.Errorf("DeleteExpense error = %v", err)
	}
}

func TestWithinTxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id, err := repo.CreateRecurrence(ctx, core.RecurrenceDefinition{
		Owner: "alice", Description: "rent", Category: "Rent", Amount: core.Money{Cents: 100000},
		Interval: core.Monthly, StartDate: core.NewDate(2024, 1, 15),
	})
	if err != nil {
		t.Fatalf("CreateRecurrence error = %v", err)
	}

	boom := errors.New("boom")
	err = repo.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.InsertExpense(ctx, core.ExpenseRecord{
			Owner: "alice", Category: "Rent", Amount: core.Money{Cents: 100000},
			Currency: "INR", Timestamp: core.NewDate(2024, 1, 15).Time,
		}); err != nil {
			return err
		}
		if err := tx.UpdateLastApplied(ctx, "alice", id, core.NewDate(2024, 1, 15)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx = %v, want boom", err)
	}
	recs, _ := repo.QueryExpenses(ctx, "alice", core.ExpenseFilter{})
	defs, _ := repo.ListRecurrences(ctx, "alice")
	if len(recs) != 0 || defs[0].LastApplied != nil {
		t.Fatalf("rollback left records=%d marker=%v", len(recs), defs[0].LastApplied)
	}

	err = repo.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.UpdateLastApplied(ctx, "alice", id, core.NewDate(2024, 3, 15))
	})
	if err != nil {
		t.Fatalf("commit error = %v", err)
	}
	defs, _ = repo.ListRecurrences(ctx, "alice")
	if defs[0].LastApplied == nil || !defs[0].LastApplied.Equal(core.NewDate(2024, 3, 15)) {
		t.Fatalf("marker = %v, want 2024-03-15", defs[0].LastApplied)
	}

	err = repo.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.UpdateLastApplied(ctx, "alice", id, core.NewDate(2024, 2, 15))
	})
	if !errors.Is(err, ledger.ErrMarkerRegression) {
		t.Errorf("backwards marker = %v, want ErrMarkerRegression", err)
	}

	err = repo.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.UpdateLastApplied(ctx, "bob", id, core.NewDate(2024, 4, 15))
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("other owner marker = %v, want ErrNotFound", err)
	}
}

func TestBudgetsRemindersAndOwners(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.UpsertBudget(ctx, core.BudgetDefinition{Owner: "alice", Category: "Food", MonthlyLimit: core.Money{Cents: 100}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertBudget(ctx, core.BudgetDefinition{Owner: "alice", Category: "Food", MonthlyLimit: core.Money{Cents: 500000}}); err != nil {
		t.Fatal(err)
	}
	budgets, _ := repo.ListBudgets(ctx, "alice")
	if len(budgets) != 1 || budgets[0].MonthlyLimit.Cents != 500000 {
		t.Errorf("ListBudgets = %+v", budgets)
	}
	if err := repo.DeleteBudget(ctx, "alice", "Travel"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteBudget missing = %v", err)
	}

	repo.CreateReminder(ctx, core.Reminder{Owner: "alice", Title: "insurance", DueDate: core.NewDate(2024, 6, 1)})
	repo.CreateReminder(ctx, core.Reminder{Owner: "alice", Title: "tax", DueDate: core.NewDate(2024, 4, 1), Notes: "form 16"})
	rems, _ := repo.ListReminders(ctx, "alice")
	if len(rems) != 2 || rems[0].Title != "tax" || rems[0].Notes != "form 16" {
		t.Errorf("ListReminders = %+v", rems)
	}

	for _, owner := range []string{"carol", "alice", "carol"} {
		repo.CreateRecurrence(ctx, core.RecurrenceDefinition{
			Owner: owner, Description: "x", Category: "Other", Amount: core.Money{Cents: 1},
			Interval: core.Daily, StartDate: core.NewDate(2024, 1, 1),
		})
	}
	owners, _ := repo.ListRecurrenceOwners(ctx)
	if len(owners) != 2 || owners[0] != "alice" || owners[1] != "carol" {
		t.Errorf("ListRecurrenceOwners = %v", owners)
	}
}
