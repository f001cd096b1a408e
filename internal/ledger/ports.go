// Package ledger declares the storage ports the services depend on. Every
// read and write is scoped to one owner; implementations live in
// internal/storage (SQLite) and internal/ledger/memory.
package ledger

import (
	"context"
	"errors"

	"expensetracker/internal/core"
)

// DefaultCategories seeds the category taxonomy of a fresh store.
var DefaultCategories = []string{"Food", "Transport", "Rent", "Entertainment", "Health", "Other"}

// ErrMarkerRegression is returned when a last-applied update would move the
// marker to an earlier date.
var ErrMarkerRegression = errors.New("last applied date cannot move backwards")

type (
	ExpenseStore interface {
		InsertExpense(ctx context.Context, e core.ExpenseRecord) (int64, error)
		GetExpense(ctx context.Context, owner string, id int64) (core.ExpenseRecord, error)
		// DeleteExpense returns a *core.NotFoundError when owner has no such record.
		DeleteExpense(ctx context.Context, owner string, id int64) error
		// QueryExpenses returns matching records ordered by timestamp desc, id desc.
		QueryExpenses(ctx context.Context, owner string, f core.ExpenseFilter) ([]core.ExpenseRecord, error)
	}

	RecurrenceCatalog interface {
		ListRecurrences(ctx context.Context, owner string) ([]core.RecurrenceDefinition, error)
		CreateRecurrence(ctx context.Context, def core.RecurrenceDefinition) (int64, error)
		DeleteRecurrence(ctx context.Context, owner string, id int64) error
		// ListRecurrenceOwners returns every owner with at least one definition.
		ListRecurrenceOwners(ctx context.Context) ([]string, error)
	}

	// Tx is the unit of work for catching up one recurrence definition.
	// Nothing written through it is visible until WithinTx commits.
	Tx interface {
		GetRecurrence(ctx context.Context, owner string, id int64) (core.RecurrenceDefinition, error)
		InsertExpense(ctx context.Context, e core.ExpenseRecord) (int64, error)
		// UpdateLastApplied refuses to move the marker backwards.
		UpdateLastApplied(ctx context.Context, owner string, id int64, date core.Date) error
	}

	Transactor interface {
		// WithinTx commits when fn returns nil and rolls back otherwise.
		WithinTx(ctx context.Context, fn func(tx Tx) error) error
	}

	BudgetCatalog interface {
		ListBudgets(ctx context.Context, owner string) ([]core.BudgetDefinition, error)
		UpsertBudget(ctx context.Context, b core.BudgetDefinition) error
		DeleteBudget(ctx context.Context, owner, category string) error
	}

	CategoryCatalog interface {
		ListCategories(ctx context.Context) ([]string, error)
		AddCategory(ctx context.Context, name string) error
		DeleteCategory(ctx context.Context, name string) error
	}

	ReminderStore interface {
		ListReminders(ctx context.Context, owner string) ([]core.Reminder, error)
		CreateReminder(ctx context.Context, r core.Reminder) (int64, error)
		DeleteReminder(ctx context.Context, owner string, id int64) error
	}

	// Store is everything a backend provides.
	Store interface {
		ExpenseStore
		RecurrenceCatalog
		Transactor
		BudgetCatalog
		CategoryCatalog
		ReminderStore
		Close() error
	}
)
