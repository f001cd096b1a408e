package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	ports "expensetracker/internal/sheets"
)

const (
	defaultSheetName   = "Ledger"
	defaultRowCacheTTL = 2 * time.Minute
)

// Options configures a Mirror. CredentialsJSON wins over CredentialsFile.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	RowCacheTTL     time.Duration
}

// valuesAPI is the slice of the Sheets API the mirror uses.
type valuesAPI interface {
	get(ctx context.Context, rng string) ([][]any, error)
	appendRows(ctx context.Context, rng string, rows [][]any) (updatedRange string, err error)
	update(ctx context.Context, rng string, rows [][]any) error
	sheetID(ctx context.Context, title string) (int64, error)
	deleteRow(ctx context.Context, sheetID int64, rowIndex int) error
}

// Mirror keeps a Google spreadsheet in step with the ledger, one row per
// expense keyed by expense id.
type Mirror struct {
	api       valuesAPI
	sheetName string

	// Row index cache: expense id -> 0-based sheet row.
	mu                 sync.Mutex
	rowIndex           map[int64]int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
	tabID              *int64
	now                func() time.Time
}

var (
	_ ports.LedgerMirror = (*Mirror)(nil)
	_ ports.LedgerLister = (*Mirror)(nil)
)

// New creates a Mirror authenticated with service account credentials.
func New(ctx context.Context, opts Options) (*Mirror, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := loadCredentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets mirror ready",
		applog.FieldComponent, applog.ComponentSheets,
		"sheet", sheetNameOrDefault(opts.SheetName))
	return newMirror(&serviceAPI{svc: svc, spreadsheetID: opts.SpreadsheetID}, opts), nil
}

func newMirror(api valuesAPI, opts Options) *Mirror {
	ttl := opts.RowCacheTTL
	if ttl <= 0 {
		ttl = defaultRowCacheTTL
	}
	return &Mirror{
		api:                api,
		sheetName:          sheetNameOrDefault(opts.SheetName),
		cacheValidDuration: ttl,
		now:                time.Now,
	}
}

func sheetNameOrDefault(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return defaultSheetName
}

func loadCredentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case strings.TrimSpace(opts.CredentialsFile) != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// newHTTPClientWithPooling returns an HTTP client with connection pooling
// and bounded timeouts for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// EnsureHeader writes the column header when the sheet is empty.
func (m *Mirror) EnsureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:F1", m.sheetName)
	values, err := m.api.get(ctx, rng)
	if err != nil {
		return classify("read header", err)
	}
	if len(values) > 0 && len(values[0]) > 0 {
		return nil
	}
	if err := m.api.update(ctx, rng, [][]any{headerRow}); err != nil {
		return classify("write header", err)
	}
	m.InvalidateRowCache()
	return nil
}

func (m *Mirror) AppendRow(ctx context.Context, row ports.LedgerRow) (string, error) {
	if row.ExpenseID <= 0 {
		return "", &core.ValidationError{Field: "expense_id", Err: fmt.Errorf("must be positive, got %d", row.ExpenseID)}
	}

	index, err := m.loadRowIndex(ctx)
	if err != nil {
		return "", err
	}
	if r, ok := index[row.ExpenseID]; ok {
		slog.DebugContext(ctx, "Row already mirrored",
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldExpenseID, row.ExpenseID)
		return m.rowRef(r), nil
	}

	updated, err := m.api.appendRows(ctx, fmt.Sprintf("%s!A:F", m.sheetName), [][]any{formatRow(row)})
	if err != nil {
		return "", classify("append row", err)
	}
	m.InvalidateRowCache()
	return updated, nil
}

func (m *Mirror) DeleteRow(ctx context.Context, expenseID int64) error {
	index, err := m.loadRowIndex(ctx)
	if err != nil {
		return err
	}
	r, ok := index[expenseID]
	if !ok {
		return nil
	}

	tab, err := m.sheetTabID(ctx)
	if err != nil {
		return err
	}
	if err := m.api.deleteRow(ctx, tab, r); err != nil {
		return classify("delete row", err)
	}
	m.InvalidateRowCache()
	return nil
}

func (m *Mirror) ListRows(ctx context.Context) ([]ports.LedgerRow, error) {
	values, err := m.api.get(ctx, fmt.Sprintf("%s!A:F", m.sheetName))
	if err != nil {
		return nil, classify("list rows", err)
	}
	out := make([]ports.LedgerRow, 0, len(values))
	for i, v := range values {
		row, err := parseRow(v)
		if err != nil {
			if !errors.Is(err, errHeaderRow) {
				slog.DebugContext(ctx, "Skipping unparseable row",
					applog.FieldComponent, applog.ComponentSheets,
					"row", i+1,
					applog.FieldError, err)
			}
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// InvalidateRowCache drops the cached id -> row index.
func (m *Mirror) InvalidateRowCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowIndex = nil
	m.cacheExpiresAt = time.Time{}
}

// loadRowIndex returns the id -> row index, reading column A when the
// cache is empty or stale.
func (m *Mirror) loadRowIndex(ctx context.Context) (map[int64]int, error) {
	m.mu.Lock()
	if m.rowIndex != nil && m.now().Before(m.cacheExpiresAt) {
		index := m.rowIndex
		m.mu.Unlock()
		return index, nil
	}
	m.mu.Unlock()

	values, err := m.api.get(ctx, fmt.Sprintf("%s!A:A", m.sheetName))
	if err != nil {
		return nil, classify("read ids", err)
	}
	index := make(map[int64]int, len(values))
	for i, v := range values {
		if len(v) == 0 {
			continue
		}
		id, err := parseID(fmt.Sprint(v[0]))
		if err != nil {
			continue
		}
		index[id] = i
	}

	m.mu.Lock()
	m.rowIndex = index
	m.cacheExpiresAt = m.now().Add(m.cacheValidDuration)
	m.mu.Unlock()
	return index, nil
}

func (m *Mirror) sheetTabID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	if m.tabID != nil {
		id := *m.tabID
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	id, err := m.api.sheetID(ctx, m.sheetName)
	if err != nil {
		return 0, classify("lookup sheet", err)
	}
	m.mu.Lock()
	m.tabID = &id
	m.mu.Unlock()
	return id, nil
}

func (m *Mirror) rowRef(rowIndex int) string {
	n := rowIndex + 1
	return fmt.Sprintf("%s!A%d:F%d", m.sheetName, n, n)
}

// classify marks transient API failures retryable. Client errors other
// than rate limiting are permanent.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != http.StatusTooManyRequests {
		return fmt.Errorf("sheets %s: %w", op, err)
	}
	return core.WrapStore("sheets "+op, err)
}

type serviceAPI struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (a *serviceAPI) get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(a.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a *serviceAPI) appendRows(ctx context.Context, rng string, rows [][]any) (string, error) {
	resp, err := a.svc.Spreadsheets.Values.Append(a.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

func (a *serviceAPI) update(ctx context.Context, rng string, rows [][]any) error {
	_, err := a.svc.Spreadsheets.Values.Update(a.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return err
}

func (a *serviceAPI) sheetID(ctx context.Context, title string) (int64, error) {
	ss, err := a.svc.Spreadsheets.Get(a.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}

func (a *serviceAPI) deleteRow(ctx context.Context, sheetID int64, rowIndex int) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(rowIndex),
					EndIndex:        int64(rowIndex + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err := a.svc.Spreadsheets.BatchUpdate(a.spreadsheetID, req).Context(ctx).Do()
	return err
}
