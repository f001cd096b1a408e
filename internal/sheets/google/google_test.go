package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/googleapi"

	"expensetracker/internal/core"
	ports "expensetracker/internal/sheets"
)

// fakeSheet is an in-memory stand-in for one spreadsheet tab.
type fakeSheet struct {
	mu      sync.Mutex
	rows    [][]any
	gets    int
	deletes []int
	failGet error
}

func (f *fakeSheet) get(_ context.Context, rng string) ([][]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGet != nil {
		return nil, f.failGet
	}
	switch {
	case strings.HasSuffix(rng, "!A:A"):
		out := make([][]any, len(f.rows))
		for i, r := range f.rows {
			if len(r) > 0 {
				out[i] = []any{r[0]}
			}
		}
		return out, nil
	case strings.HasSuffix(rng, "!A1:F1"):
		if len(f.rows) == 0 {
			return nil, nil
		}
		return f.rows[:1], nil
	default:
		return append([][]any(nil), f.rows...), nil
	}
}

func (f *fakeSheet) appendRows(_ context.Context, rng string, rows [][]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	n := len(f.rows)
	return fmt.Sprintf("%s%d:F%d", strings.TrimSuffix(rng, ":F"), n, n), nil
}

func (f *fakeSheet) update(_ context.Context, _ string, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rows) == 0 {
		f.rows = append(f.rows, rows...)
		return nil
	}
	f.rows[0] = rows[0]
	return nil
}

func (f *fakeSheet) sheetID(context.Context, string) (int64, error) {
	return 7, nil
}

func (f *fakeSheet) deleteRow(_ context.Context, sheetID int64, rowIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sheetID != 7 {
		return fmt.Errorf("unknown sheet %d", sheetID)
	}
	f.deletes = append(f.deletes, rowIndex)
	f.rows = append(f.rows[:rowIndex], f.rows[rowIndex+1:]...)
	return nil
}

func ledgerRow(id int64, category string, cents int64) ports.LedgerRow {
	return ports.LedgerRow{
		ExpenseID: id,
		Owner:     "alice",
		Date:      core.NewDate(2024, 4, 1),
		Category:  category,
		Amount:    core.Money{Cents: cents},
		Currency:  "INR",
	}
}

func TestNew_MissingConfig(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"no spreadsheet", Options{CredentialsJSON: "{}"}, "missing spreadsheet id"},
		{"no credentials", Options{SpreadsheetID: "sheet-1"}, "missing service account credentials"},
		{"unreadable file", Options{SpreadsheetID: "sheet-1", CredentialsFile: "/nonexistent/sa.json"}, "read service account file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("New() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadCredentials_PrefersJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := loadCredentials(Options{CredentialsJSON: `{"from":"env"}`, CredentialsFile: path})
	if err != nil || string(got) != `{"from":"env"}` {
		t.Errorf("loadCredentials() = %s, %v", got, err)
	}
	got, err = loadCredentials(Options{CredentialsFile: path})
	if err != nil || string(got) != `{"from":"file"}` {
		t.Errorf("loadCredentials(file) = %s, %v", got, err)
	}
}

func TestMirror_EnsureHeader(t *testing.T) {
	sheet := &fakeSheet{}
	m := newMirror(sheet, Options{})

	for i := 0; i < 2; i++ {
		if err := m.EnsureHeader(context.Background()); err != nil {
			t.Fatalf("EnsureHeader() error = %v", err)
		}
	}
	if len(sheet.rows) != 1 || sheet.rows[0][0] != "ID" {
		t.Errorf("rows = %v, want a single header row", sheet.rows)
	}
}

func TestMirror_AppendRow_Idempotent(t *testing.T) {
	ctx := context.Background()
	sheet := &fakeSheet{rows: [][]any{headerRow}}
	m := newMirror(sheet, Options{SheetName: "Ledger"})

	ref, err := m.AppendRow(ctx, ledgerRow(11, "Food", 4200))
	if err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}
	if ref != "Ledger!A2:F2" {
		t.Errorf("AppendRow() ref = %q, want Ledger!A2:F2", ref)
	}

	again, err := m.AppendRow(ctx, ledgerRow(11, "Food", 4200))
	if err != nil {
		t.Fatalf("AppendRow() duplicate error = %v", err)
	}
	if again != ref {
		t.Errorf("duplicate AppendRow() ref = %q, want %q", again, ref)
	}
	if len(sheet.rows) != 2 {
		t.Errorf("sheet has %d rows, want header plus one", len(sheet.rows))
	}

	if _, err := m.AppendRow(ctx, ledgerRow(0, "Food", 1)); err == nil {
		t.Error("AppendRow() with zero id should fail")
	}
}

func TestMirror_DeleteRow(t *testing.T) {
	ctx := context.Background()
	sheet := &fakeSheet{rows: [][]any{headerRow}}
	m := newMirror(sheet, Options{})

	for i, c := range []string{"Food", "Rent", "Travel"} {
		if _, err := m.AppendRow(ctx, ledgerRow(int64(i+1), c, 100)); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.DeleteRow(ctx, 2); err != nil {
		t.Fatalf("DeleteRow() error = %v", err)
	}
	if len(sheet.deletes) != 1 || sheet.deletes[0] != 2 {
		t.Errorf("deleted row indexes = %v, want [2]", sheet.deletes)
	}

	// Already gone: no second delete call.
	if err := m.DeleteRow(ctx, 2); err != nil {
		t.Fatalf("DeleteRow(missing) error = %v", err)
	}
	if len(sheet.deletes) != 1 {
		t.Errorf("deleted row indexes = %v, want one call", sheet.deletes)
	}

	rows, err := m.ListRows(ctx)
	if err != nil {
		t.Fatalf("ListRows() error = %v", err)
	}
	if len(rows) != 2 || rows[0].Category != "Food" || rows[1].Category != "Travel" {
		t.Errorf("ListRows() = %+v, want Food and Travel", rows)
	}
}

func TestMirror_ListRows_SkipsBadRows(t *testing.T) {
	sheet := &fakeSheet{rows: [][]any{
		headerRow,
		formatRow(ledgerRow(1, "Food", 100)),
		{"garbage"},
		{},
		formatRow(ledgerRow(2, "Rent", 200)),
	}}
	m := newMirror(sheet, Options{})

	rows, err := m.ListRows(context.Background())
	if err != nil {
		t.Fatalf("ListRows() error = %v", err)
	}
	if len(rows) != 2 || rows[0].ExpenseID != 1 || rows[1].ExpenseID != 2 {
		t.Errorf("ListRows() = %+v", rows)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, false},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"unavailable", &googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		{"network", errors.New("connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("append row", tt.err)
			if got := core.IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable(classify(%v)) = %v, want %v", tt.err, got, tt.retryable)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("classify() lost the cause: %v", err)
			}
		})
	}
}

func TestMirror_ReadFailureIsRetryable(t *testing.T) {
	sheet := &fakeSheet{failGet: &googleapi.Error{Code: http.StatusBadGateway}}
	m := newMirror(sheet, Options{})

	_, err := m.AppendRow(context.Background(), ledgerRow(1, "Food", 100))
	if !core.IsRetryable(err) {
		t.Errorf("AppendRow() error = %v, want retryable", err)
	}
}
