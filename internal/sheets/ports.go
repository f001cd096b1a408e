package sheets

import (
	"context"

	"expensetracker/internal/core"
)

// LedgerRow is one expense as it appears in the mirror spreadsheet.
type LedgerRow struct {
	ExpenseID int64
	Owner     string
	Date      core.Date
	Category  string
	Amount    core.Money
	Currency  string
}

func RowFromExpense(e core.ExpenseRecord) LedgerRow {
	return LedgerRow{
		ExpenseID: e.ID,
		Owner:     e.Owner,
		Date:      e.Date(),
		Category:  e.Category,
		Amount:    e.Amount,
		Currency:  e.Currency,
	}
}

// Ports for outbound adapters.
type (
	LedgerMirror interface {
		// AppendRow is idempotent on ExpenseID: a row already present is
		// left alone and its reference returned.
		AppendRow(ctx context.Context, row LedgerRow) (rowRef string, err error)
		// DeleteRow removes the row for expenseID. A missing row is not an error.
		DeleteRow(ctx context.Context, expenseID int64) error
	}

	// LedgerLister reads mirrored rows back, oldest first.
	LedgerLister interface {
		ListRows(ctx context.Context) ([]LedgerRow, error)
	}
)
