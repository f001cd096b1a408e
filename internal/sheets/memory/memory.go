package memory

import (
	"context"
	"fmt"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/sheets"
)

// Mirror is an in-process ledger mirror for local runs and tests.
type Mirror struct {
	mu   sync.Mutex
	rows []sheets.LedgerRow
}

var (
	_ sheets.LedgerMirror = (*Mirror)(nil)
	_ sheets.LedgerLister = (*Mirror)(nil)
)

func New() *Mirror {
	return &Mirror{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (m *Mirror) AppendRow(_ context.Context, row sheets.LedgerRow) (string, error) {
	if row.ExpenseID <= 0 {
		return "", &core.ValidationError{Field: "expense_id", Err: fmt.Errorf("must be positive, got %d", row.ExpenseID)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ExpenseID == row.ExpenseID {
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	m.rows = append(m.rows, row)
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

func (m *Mirror) DeleteRow(_ context.Context, expenseID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ExpenseID == expenseID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Mirror) ListRows(_ context.Context) ([]sheets.LedgerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sheets.LedgerRow(nil), m.rows...), nil
}
