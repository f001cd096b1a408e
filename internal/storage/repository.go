package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"expensetracker/internal/core"
	"expensetracker/internal/ledger"

	_ "modernc.org/sqlite"
)

// Write transactions take the lock at BEGIN so two catch-ups for the same
// definition cannot interleave their read and write.
const dsnPragmas = "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_txlock=immediate"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pooled connection switches the file to WAL.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers; used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return core.WrapStore("ping", r.db.PingContext(ctx))
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.ExpenseRecord) (int64, error) {
	id, err := r.queries.CreateExpense(ctx, e)
	if err != nil {
		return 0, core.WrapStore("create expense", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", id,
		"owner", e.Owner,
		"category", e.Category,
		"amount_cents", e.Amount.Cents)

	return id, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, owner string, id int64) (core.ExpenseRecord, error) {
	e, err := r.queries.GetExpense(ctx, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, notFound("expense", owner, id)
	}
	if err != nil {
		return core.ExpenseRecord{}, core.WrapStore("get expense", err)
	}
	return e, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, owner string, id int64) error {
	n, err := r.queries.DeleteExpense(ctx, owner, id)
	if err != nil {
		return core.WrapStore("delete expense", err)
	}
	if n == 0 {
		return notFound("expense", owner, id)
	}
	return nil
}

func (r *SQLiteRepository) QueryExpenses(ctx context.Context, owner string, f core.ExpenseFilter) ([]core.ExpenseRecord, error) {
	out, err := r.queries.SearchExpenses(ctx, owner, f)
	if err != nil {
		return nil, core.WrapStore("query expenses", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListRecurrences(ctx context.Context, owner string) ([]core.RecurrenceDefinition, error) {
	out, err := r.queries.ListRecurrences(ctx, owner)
	if err != nil {
		return nil, core.WrapStore("list recurrences", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateRecurrence(ctx context.Context, def core.RecurrenceDefinition) (int64, error) {
	id, err := r.queries.CreateRecurrence(ctx, def)
	if err != nil {
		return 0, core.WrapStore("create recurrence", err)
	}
	return id, nil
}

func (r *SQLiteRepository) DeleteRecurrence(ctx context.Context, owner string, id int64) error {
	n, err := r.queries.DeleteRecurrence(ctx, owner, id)
	if err != nil {
		return core.WrapStore("delete recurrence", err)
	}
	if n == 0 {
		return notFound("recurrence", owner, id)
	}
	return nil
}

func (r *SQLiteRepository) ListRecurrenceOwners(ctx context.Context) ([]string, error) {
	out, err := r.queries.ListRecurrenceOwners(ctx)
	if err != nil {
		return nil, core.WrapStore("list recurrence owners", err)
	}
	return out, nil
}

// WithinTx runs fn inside one SQLite transaction.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapStore("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{q: r.queries.WithTx(tx)}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.WrapStore("commit tx", err)
	}
	return nil
}

type sqliteTx struct {
	q *Queries
}

func (t *sqliteTx) GetRecurrence(ctx context.Context, owner string, id int64) (core.RecurrenceDefinition, error) {
	def, err := t.q.GetRecurrence(ctx, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurrenceDefinition{}, notFound("recurrence", owner, id)
	}
	if err != nil {
		return core.RecurrenceDefinition{}, core.WrapStore("get recurrence", err)
	}
	return def, nil
}

func (t *sqliteTx) InsertExpense(ctx context.Context, e core.ExpenseRecord) (int64, error) {
	id, err := t.q.CreateExpense(ctx, e)
	if err != nil {
		return 0, core.WrapStore("create expense", err)
	}
	return id, nil
}

func (t *sqliteTx) UpdateLastApplied(ctx context.Context, owner string, id int64, date core.Date) error {
	n, err := t.q.UpdateLastApplied(ctx, owner, id, date)
	if err != nil {
		return core.WrapStore("update last applied", err)
	}
	if n == 1 {
		return nil
	}
	// Zero rows: either the definition is gone or the guard refused the date.
	if _, err := t.GetRecurrence(ctx, owner, id); err != nil {
		return err
	}
	return fmt.Errorf("recurrence %d: %w", id, ledger.ErrMarkerRegression)
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, owner string) ([]core.BudgetDefinition, error) {
	out, err := r.queries.ListBudgets(ctx, owner)
	if err != nil {
		return nil, core.WrapStore("list budgets", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.BudgetDefinition) error {
	return core.WrapStore("upsert budget", r.queries.UpsertBudget(ctx, b))
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, owner, category string) error {
	n, err := r.queries.DeleteBudget(ctx, owner, category)
	if err != nil {
		return core.WrapStore("delete budget", err)
	}
	if n == 0 {
		return &core.NotFoundError{Kind: "budget", Owner: owner, ID: category}
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	out, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, core.WrapStore("list categories", err)
	}
	return out, nil
}

func (r *SQLiteRepository) AddCategory(ctx context.Context, name string) error {
	return core.WrapStore("add category", r.queries.AddCategory(ctx, name))
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, name string) error {
	n, err := r.queries.DeleteCategory(ctx, name)
	if err != nil {
		return core.WrapStore("delete category", err)
	}
	if n == 0 {
		return &core.NotFoundError{Kind: "category", ID: name}
	}
	return nil
}

func (r *SQLiteRepository) ListReminders(ctx context.Context, owner string) ([]core.Reminder, error) {
	out, err := r.queries.ListReminders(ctx, owner)
	if err != nil {
		return nil, core.WrapStore("list reminders", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateReminder(ctx context.Context, rem core.Reminder) (int64, error) {
	id, err := r.queries.CreateReminder(ctx, rem)
	if err != nil {
		return 0, core.WrapStore("create reminder", err)
	}
	return id, nil
}

func (r *SQLiteRepository) DeleteReminder(ctx context.Context, owner string, id int64) error {
	n, err := r.queries.DeleteReminder(ctx, owner, id)
	if err != nil {
		return core.WrapStore("delete reminder", err)
	}
	if n == 0 {
		return notFound("reminder", owner, id)
	}
	return nil
}

func notFound(kind, owner string, id int64) error {
	return &core.NotFoundError{Kind: kind, Owner: owner, ID: strconv.FormatInt(id, 10)}
}
