package google

import (
	"errors"
	"testing"

	"expensetracker/internal/core"
	ports "expensetracker/internal/sheets"
)

func TestFormatRow_ParseRow(t *testing.T) {
	row := ports.LedgerRow{
		ExpenseID: 42,
		Owner:     "alice",
		Date:      core.NewDate(2024, 4, 15),
		Category:  "Rent",
		Amount:    core.Money{Cents: 120000},
		Currency:  "INR",
	}

	values := formatRow(row)
	want := []any{"42", "alice", "2024-04-15", "Rent", "1200.00", "INR"}
	if len(values) != len(want) {
		t.Fatalf("formatRow() = %v, want %v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("formatRow()[%d] = %v, want %v", i, values[i], want[i])
		}
	}

	got, err := parseRow(values)
	if err != nil {
		t.Fatalf("parseRow() error = %v", err)
	}
	if got != row {
		t.Errorf("parseRow() = %+v, want %+v", got, row)
	}
}

func TestParseRow_Header(t *testing.T) {
	_, err := parseRow(headerRow)
	if !errors.Is(err, errHeaderRow) {
		t.Errorf("parseRow(header) error = %v, want errHeaderRow", err)
	}
}

func TestParseRow_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values []any
	}{
		{"short row", []any{"1", "alice", "2024-01-01"}},
		{"bad id", []any{"x", "alice", "2024-01-01", "Food", "1.00", "INR"}},
		{"zero id", []any{"0", "alice", "2024-01-01", "Food", "1.00", "INR"}},
		{"bad date", []any{"1", "alice", "01/02/2024", "Food", "1.00", "INR"}},
		{"zero amount", []any{"1", "alice", "2024-01-01", "Food", "0", "INR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRow(tt.values); err == nil {
				t.Errorf("parseRow(%v) should fail", tt.values)
			}
		})
	}
}

func TestParseRow_NumericCells(t *testing.T) {
	// Unformatted reads return numbers rather than strings.
	got, err := parseRow([]any{float64(7), "bob", "2024-02-29", "Food", 12.5, "INR"})
	if err != nil {
		t.Fatalf("parseRow() error = %v", err)
	}
	if got.ExpenseID != 7 || got.Amount.Cents != 1250 {
		t.Errorf("parseRow() = %+v", got)
	}
}
