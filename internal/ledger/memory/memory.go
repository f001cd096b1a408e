package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
)

type budgetKey struct{ owner, category string }

// Store is a process-local ledger. WithinTx holds the store lock for the
// whole unit of work, so catch-ups are serialized across owners too.
type Store struct {
	mu          sync.Mutex
	lastID      int64
	expenses    []core.ExpenseRecord
	recurrences []core.RecurrenceDefinition
	budgets     map[budgetKey]core.BudgetDefinition
	categories  []string
	reminders   []core.Reminder
}

var _ ledger.Store = (*Store)(nil)

func New(categories []string) *Store {
	return &Store{
		budgets:    make(map[budgetKey]core.BudgetDefinition),
		categories: dedupeSorted(categories),
	}
}

// NewFromFiles seeds the taxonomy from base/seed_categories.txt, falling
// back to the default categories.
func NewFromFiles(base string) *Store {
	cats := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = ledger.DefaultCategories
	}
	return New(cats)
}

func (s *Store) Close() error { return nil }

func (s *Store) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *Store) InsertExpense(ctx context.Context, e core.ExpenseRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.WrapStore("insert expense", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID()
	s.expenses = append(s.expenses, e)
	return e.ID, nil
}

func (s *Store) GetExpense(ctx context.Context, owner string, id int64) (core.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return core.ExpenseRecord{}, core.WrapStore("get expense", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.ID == id && e.Owner == owner {
			return e, nil
		}
	}
	return core.ExpenseRecord{}, notFound("expense", owner, id)
}

func (s *Store) DeleteExpense(ctx context.Context, owner string, id int64) error {
	if err := ctx.Err(); err != nil {
		return core.WrapStore("delete expense", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == id && e.Owner == owner {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return notFound("expense", owner, id)
}

func (s *Store) QueryExpenses(ctx context.Context, owner string, f core.ExpenseFilter) ([]core.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapStore("query expenses", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ExpenseRecord, 0)
	for _, e := range s.expenses {
		if e.Owner == owner && f.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListRecurrences(ctx context.Context, owner string) ([]core.RecurrenceDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapStore("list recurrences", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RecurrenceDefinition, 0)
	for _, r := range s.recurrences {
		if r.Owner == owner {
			out = append(out, cloneRecurrence(r))
		}
	}
	return out, nil
}

func (s *Store) CreateRecurrence(ctx context.Context, def core.RecurrenceDefinition) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.WrapStore("create recurrence", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	def = cloneRecurrence(def)
	def.ID = s.nextID()
	s.recurrences = append(s.recurrences, def)
	return def.ID, nil
}

func (s *Store) DeleteRecurrence(ctx context.Context, owner string, id int64) error {
	if err := ctx.Err(); err != nil {
		return core.WrapStore("delete recurrence", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.recurrences {
		if r.ID == id && r.Owner == owner {
			s.recurrences = append(s.recurrences[:i], s.recurrences[i+1:]...)
			return nil
		}
	}
	return notFound("recurrence", owner, id)
}

func (s *Store) ListRecurrenceOwners(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapStore("list recurrence owners", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := make([]string, 0)
	for _, r := range s.recurrences {
		owners = append(owners, r.Owner)
	}
	return dedupeSorted(owners), nil
}

// WithinTx stages writes and applies them only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return core.WrapStore("begin tx", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, markers: make(map[int64]core.Date)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return core.WrapStore("commit tx", err)
	}
	s.expenses = append(s.expenses, tx.inserts...)
	for i := range s.recurrences {
		if d, ok := tx.markers[s.recurrences[i].ID]; ok {
			marker := d
			s.recurrences[i].LastApplied = &marker
		}
	}
	return nil
}

type memTx struct {
	s       *Store
	inserts []core.ExpenseRecord
	markers map[int64]core.Date
}

func (t *memTx) GetRecurrence(ctx context.Context, owner string, id int64) (core.RecurrenceDefinition, error) {
	if err := ctx.Err(); err != nil {
		return core.RecurrenceDefinition{}, core.WrapStore("get recurrence", err)
	}
	for _, r := range t.s.recurrences {
		if r.ID == id && r.Owner == owner {
			r = cloneRecurrence(r)
			if d, ok := t.markers[id]; ok {
				r.LastApplied = &d
			}
			return r, nil
		}
	}
	return core.RecurrenceDefinition{}, notFound("recurrence", owner, id)
}

func (t *memTx) InsertExpense(ctx context.Context, e core.ExpenseRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.WrapStore("insert expense", err)
	}
	e.ID = t.s.nextID()
	t.inserts = append(t.inserts, e)
	return e.ID, nil
}

func (t *memTx) UpdateLastApplied(ctx context.Context, owner string, id int64, date core.Date) error {
	current, err := t.GetRecurrence(ctx, owner, id)
	if err != nil {
		return err
	}
	if current.LastApplied != nil && date.Before(*current.LastApplied) {
		return fmt.Errorf("recurrence %d: %w", id, ledger.ErrMarkerRegression)
	}
	t.markers[id] = date
	return nil
}

func (s *Store) ListBudgets(ctx context.Context, owner string) ([]core.BudgetDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapStore("list budgets", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.BudgetDefinition, 0)
	for k, b := range s.budgets {
		if k.owner == owner {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *Store) UpsertBudget(ctx context.Context, b core.BudgetDefinition) error {
	if err := ctx.Err(); err != nil {
		return core.WrapStore("upsert budget", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[budgetKey{b.Owner, b.Category}] = b
	return nil
}

func (s *Store) DeleteBudget(ctx context.Context, owner, category string) error {
	if err := ctx.Err(); err != nil {
		return core.WrapStore("delete budget", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := budgetKey{owner, category}
	if _, ok := s.budgets[k]; !ok {
		return &core.NotFoundError{Kind: "budget", Owner: owner, ID: category}
	}
	delete(s.budgets, k)
	return nil
}

// ListCategories returns categories sorted by name.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapStore("list categories", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.categories...), nil
}

// AddCategory is a no-op for names already present.
func (s *Store) AddCategory(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return core.WrapStore("add category", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = dedupeSorted(append(s.categories, name))
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return core.WrapStore("delete category", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.categories {
		if c == name {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			return nil
		}
	}
	return &core.NotFoundError{Kind: "category", ID: name}
}

// ListReminders returns owner's reminders by due date.
func (s *Store) ListReminders(ctx context.Context, owner string) ([]core.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapStore("list reminders", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Reminder, 0)
	for _, r := range s.reminders {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateReminder(ctx context.Context, r core.Reminder) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.WrapStore("create reminder", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID()
	s.reminders = append(s.reminders, r)
	return r.ID, nil
}

func (s *Store) DeleteReminder(ctx context.Context, owner string, id int64) error {
	if err := ctx.Err(); err != nil {
		return core.WrapStore("delete reminder", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.reminders {
		if r.ID == id && r.Owner == owner {
			s.reminders = append(s.reminders[:i], s.reminders[i+1:]...)
			return nil
		}
	}
	return notFound("reminder", owner, id)
}

func notFound(kind, owner string, id int64) error {
	return &core.NotFoundError{Kind: kind, Owner: owner, ID: strconv.FormatInt(id, 10)}
}

func cloneRecurrence(r core.RecurrenceDefinition) core.RecurrenceDefinition {
	if r.LastApplied != nil {
		d := *r.LastApplied
		r.LastApplied = &d
	}
	return r
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupeSorted(out)
}

func dedupeSorted(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
