package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"expensetracker/internal/core"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the SQL for every table. Bind it to a transaction with WithTx.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, s, time.UTC)
}

func parseDate(s string) (core.Date, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: t}, nil
}

const createExpense = `
INSERT INTO expenses (owner, category, amount_cents, currency, receipt_ref, occurred_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateExpense(ctx context.Context, e core.ExpenseRecord) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createExpense,
		e.Owner, e.Category, e.Amount.Cents, e.Currency, e.ReceiptRef, formatTimestamp(e.Timestamp),
	).Scan(&id)
	return id, err
}

const expenseColumns = `id, owner, category, amount_cents, currency, receipt_ref, occurred_at`

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE owner = ? AND id = ?`

func (q *Queries) GetExpense(ctx context.Context, owner string, id int64) (core.ExpenseRecord, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, owner, id))
}

const deleteExpense = `DELETE FROM expenses WHERE owner = ? AND id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, owner string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, owner, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SearchExpenses builds the WHERE clause from the non-empty filter fields.
func (q *Queries) SearchExpenses(ctx context.Context, owner string, f core.ExpenseFilter) ([]core.ExpenseRecord, error) {
	var (
		clauses = []string{"owner = ?"}
		args    = []any{owner}
	)
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.Keyword != "" {
		clauses = append(clauses, "category LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.Keyword)+"%")
	}
	if f.MinAmount != nil {
		clauses = append(clauses, "amount_cents >= ?")
		args = append(args, f.MinAmount.Cents)
	}
	if f.MaxAmount != nil {
		clauses = append(clauses, "amount_cents <= ?")
		args = append(args, f.MaxAmount.Cents)
	}
	if f.From != nil {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, formatTimestamp(f.From.Time))
	}
	if f.To != nil {
		clauses = append(clauses, "occurred_at < ?")
		args = append(args, formatTimestamp(f.To.AddDays(1).Time))
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY occurred_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.ExpenseRecord, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// escapeLike makes % and _ in user input literal. SQLite LIKE folds ASCII
// letters only; ExpenseFilter.Matches folds the same way.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.ExpenseRecord, error) {
	var (
		e          core.ExpenseRecord
		occurredAt string
	)
	if err := row.Scan(&e.ID, &e.Owner, &e.Category, &e.Amount.Cents, &e.Currency, &e.ReceiptRef, &occurredAt); err != nil {
		return core.ExpenseRecord{}, err
	}
	ts, err := parseTimestamp(occurredAt)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	e.Timestamp = ts
	return e, nil
}

const recurrenceColumns = `id, owner, description, category, amount_cents, interval_type, start_date, last_applied_date`

const listRecurrences = `SELECT ` + recurrenceColumns + ` FROM recurring_expenses WHERE owner = ? ORDER BY id`

func (q *Queries) ListRecurrences(ctx context.Context, owner string) ([]core.RecurrenceDefinition, error) {
	rows, err := q.db.QueryContext(ctx, listRecurrences, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.RecurrenceDefinition, 0)
	for rows.Next() {
		r, err := scanRecurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const getRecurrence = `SELECT ` + recurrenceColumns + ` FROM recurring_expenses WHERE owner = ? AND id = ?`

func (q *Queries) GetRecurrence(ctx context.Context, owner string, id int64) (core.RecurrenceDefinition, error) {
	return scanRecurrence(q.db.QueryRowContext(ctx, getRecurrence, owner, id))
}

func scanRecurrence(row rowScanner) (core.RecurrenceDefinition, error) {
	var (
		r           core.RecurrenceDefinition
		interval    string
		startDate   string
		lastApplied sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Owner, &r.Description, &r.Category, &r.Amount.Cents, &interval, &startDate, &lastApplied); err != nil {
		return core.RecurrenceDefinition{}, err
	}
	r.Interval = core.Interval(interval)
	start, err := parseDate(startDate)
	if err != nil {
		return core.RecurrenceDefinition{}, err
	}
	r.StartDate = start
	if lastApplied.Valid {
		d, err := parseDate(lastApplied.String)
		if err != nil {
			return core.RecurrenceDefinition{}, err
		}
		r.LastApplied = &d
	}
	return r, nil
}

const createRecurrence = `
INSERT INTO recurring_expenses (owner, description, category, amount_cents, interval_type, start_date, last_applied_date)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateRecurrence(ctx context.Context, r core.RecurrenceDefinition) (int64, error) {
	var lastApplied sql.NullString
	if r.LastApplied != nil {
		lastApplied = sql.NullString{String: r.LastApplied.String(), Valid: true}
	}
	var id int64
	err := q.db.QueryRowContext(ctx, createRecurrence,
		r.Owner, r.Description, r.Category, r.Amount.Cents, string(r.Interval), r.StartDate.String(), lastApplied,
	).Scan(&id)
	return id, err
}

const deleteRecurrence = `DELETE FROM recurring_expenses WHERE owner = ? AND id = ?`

func (q *Queries) DeleteRecurrence(ctx context.Context, owner string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteRecurrence, owner, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listRecurrenceOwners = `SELECT DISTINCT owner FROM recurring_expenses ORDER BY owner`

func (q *Queries) ListRecurrenceOwners(ctx context.Context) ([]string, error) {
	return q.listStrings(ctx, listRecurrenceOwners)
}

// The guard keeps the marker monotonic: an earlier date matches no row.
const updateLastApplied = `
UPDATE recurring_expenses
SET last_applied_date = ?
WHERE owner = ? AND id = ? AND (last_applied_date IS NULL OR last_applied_date <= ?)`

func (q *Queries) UpdateLastApplied(ctx context.Context, owner string, id int64, date core.Date) (int64, error) {
	d := date.String()
	res, err := q.db.ExecContext(ctx, updateLastApplied, d, owner, id, d)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listBudgets = `SELECT owner, category, monthly_limit_cents FROM budgets WHERE owner = ? ORDER BY category`

func (q *Queries) ListBudgets(ctx context.Context, owner string) ([]core.BudgetDefinition, error) {
	rows, err := q.db.QueryContext(ctx, listBudgets, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.BudgetDefinition, 0)
	for rows.Next() {
		var b core.BudgetDefinition
		if err := rows.Scan(&b.Owner, &b.Category, &b.MonthlyLimit.Cents); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const upsertBudget = `
INSERT INTO budgets (owner, category, monthly_limit_cents) VALUES (?, ?, ?)
ON CONFLICT (owner, category) DO UPDATE SET monthly_limit_cents = excluded.monthly_limit_cents`

func (q *Queries) UpsertBudget(ctx context.Context, b core.BudgetDefinition) error {
	_, err := q.db.ExecContext(ctx, upsertBudget, b.Owner, b.Category, b.MonthlyLimit.Cents)
	return err
}

const deleteBudget = `DELETE FROM budgets WHERE owner = ? AND category = ?`

func (q *Queries) DeleteBudget(ctx context.Context, owner, category string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteBudget, owner, category)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listCategories = `SELECT name FROM categories ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	return q.listStrings(ctx, listCategories)
}

const addCategory = `INSERT OR IGNORE INTO categories (name) VALUES (?)`

func (q *Queries) AddCategory(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, addCategory, name)
	return err
}

const deleteCategory = `DELETE FROM categories WHERE name = ?`

func (q *Queries) DeleteCategory(ctx context.Context, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listReminders = `SELECT id, owner, title, due_date, notes FROM reminders WHERE owner = ? ORDER BY due_date, id`

func (q *Queries) ListReminders(ctx context.Context, owner string) ([]core.Reminder, error) {
	rows, err := q.db.QueryContext(ctx, listReminders, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.Reminder, 0)
	for rows.Next() {
		var (
			r   core.Reminder
			due string
		)
		if err := rows.Scan(&r.ID, &r.Owner, &r.Title, &due, &r.Notes); err != nil {
			return nil, err
		}
		if r.DueDate, err = parseDate(due); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const createReminder = `INSERT INTO reminders (owner, title, due_date, notes) VALUES (?, ?, ?, ?) RETURNING id`

func (q *Queries) CreateReminder(ctx context.Context, r core.Reminder) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createReminder, r.Owner, r.Title, r.DueDate.String(), r.Notes).Scan(&id)
	return id, err
}

const deleteReminder = `DELETE FROM reminders WHERE owner = ? AND id = ?`

func (q *Queries) DeleteReminder(ctx context.Context, owner string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteReminder, owner, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
