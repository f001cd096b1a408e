package google

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"expensetracker/internal/core"
	ports "expensetracker/internal/sheets"
)

// Column layout of the ledger sheet.
var headerRow = []any{"ID", "Owner", "Date", "Category", "Amount", "Currency"}

const (
	colID = iota
	colOwner
	colDate
	colCategory
	colAmount
	colCurrency
	numCols
)

var errHeaderRow = errors.New("header row")

func formatRow(r ports.LedgerRow) []any {
	return []any{
		strconv.FormatInt(r.ExpenseID, 10),
		r.Owner,
		r.Date.String(),
		r.Category,
		r.Amount.String(),
		r.Currency,
	}
}

// parseRow converts one values row back to a LedgerRow. The header row
// yields errHeaderRow.
func parseRow(values []any) (ports.LedgerRow, error) {
	cols := toStrings(values)
	if len(cols) < numCols {
		return ports.LedgerRow{}, fmt.Errorf("short row: %d columns", len(cols))
	}
	if strings.EqualFold(cols[colID], "ID") {
		return ports.LedgerRow{}, errHeaderRow
	}
	id, err := parseID(cols[colID])
	if err != nil {
		return ports.LedgerRow{}, err
	}
	date, err := core.ParseDate(cols[colDate])
	if err != nil {
		return ports.LedgerRow{}, fmt.Errorf("row %d: %w", id, err)
	}
	amount, err := core.ParseMoney(cols[colAmount])
	if err != nil {
		return ports.LedgerRow{}, fmt.Errorf("row %d: %w", id, err)
	}
	return ports.LedgerRow{
		ExpenseID: id,
		Owner:     cols[colOwner],
		Date:      date,
		Category:  cols[colCategory],
		Amount:    amount,
		Currency:  cols[colCurrency],
	}, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid expense id %q", s)
	}
	return id, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
