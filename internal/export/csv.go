// Package export renders ledger records for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"expensetracker/internal/core"
)

// Header is the first line of every CSV export.
var Header = []string{"ID", "Category", "Amount", "Date"}

// WriteCSV writes recs under Header in the order given. Amounts use two
// decimals and dates YYYY-MM-DD.
func WriteCSV(w io.Writer, recs []core.ExpenseRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range recs {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Category,
			rec.Amount.String(),
			rec.Date().String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", rec.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
