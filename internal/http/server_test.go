package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	"expensetracker/internal/ledger/memory"
	"expensetracker/internal/services"
)

var fixedNow = time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// failingQueryStore fails every ledger query with a store error.
type failingQueryStore struct {
	*memory.Store
}

func (failingQueryStore) QueryExpenses(context.Context, string, core.ExpenseFilter) ([]core.ExpenseRecord, error) {
	return nil, &core.StoreError{Op: "query expenses", Err: errors.New("database is locked")}
}

func newServices(store *memory.Store, query ledger.ExpenseStore) Services {
	analytics := services.NewAnalyticsService(query, services.DefaultAnalyticsConfig())
	return Services{
		Expenses:   services.NewExpenseService(store, nil, analytics),
		Catalog:    services.NewCatalogService(store),
		Analytics:  analytics,
		Budgets:    services.NewBudgetEvaluator(store, analytics),
		Recurrence: services.NewRecurrenceEngine(store, nil, analytics, services.DefaultRecurrenceEngineConfig()),
	}
}

func newTestServer(t *testing.T, mutate func(*Options)) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New([]string{"Food", "Rent"})
	opts := Options{Now: func() time.Time { return fixedNow }}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(newServices(store, store), opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(t *testing.T, h http.Handler, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := do(t, srv.Handler, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}

	down, _ := newTestServer(t, func(o *Options) {
		o.Pinger = pingerFunc(func(context.Context) error { return errors.New("connection refused") })
	})
	rec := do(t, down.Handler, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz with failing store status = %d, want 503", rec.Code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv.Handler, http.MethodGet, "/api/expenses", "alice", "")

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestMissingOwner(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv.Handler, http.MethodGet, "/api/dashboard", "", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decode[ErrorBody](t, rec)
	if body.Field != "owner" || !strings.Contains(body.Error, OwnerHeader) {
		t.Errorf("error body = %+v", body)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv.Handler, http.MethodPost, "/api/expenses", "alice",
		`{"category":"Food","amount":12.5,"date":"2024-04-10"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body)
	}
	created := decode[struct {
		ID       int64   `json:"id"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Date     string  `json:"date"`
	}](t, rec)
	if created.Amount != 12.5 || created.Currency != core.DefaultCurrency || created.Date != "2024-04-10" {
		t.Errorf("created = %+v", created)
	}
	if rec.Header().Get("Location") == "" {
		t.Error("missing Location header")
	}

	list := do(t, srv.Handler, http.MethodGet, "/api/expenses?category=Food&from=2024-04-01&to=2024-04-30", "alice", "")
	if items := decode[[]expenseResponse](t, list); len(items) != 1 || items[0].ID != created.ID {
		t.Fatalf("list = %s", list.Body)
	}
	other := do(t, srv.Handler, http.MethodGet, "/api/expenses", "bob", "")
	if items := decode[[]expenseResponse](t, other); len(items) != 0 {
		t.Errorf("bob sees %d expenses, want 0", len(items))
	}

	path := "/api/expenses/" + jsonNumber(created.ID)
	if rec := do(t, srv.Handler, http.MethodDelete, path, "bob", ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete by other owner status = %d, want 404", rec.Code)
	}
	if rec := do(t, srv.Handler, http.MethodDelete, path, "alice", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	if rec := do(t, srv.Handler, http.MethodDelete, path, "alice", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCreateExpenseValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"negative amount", `{"category":"Food","amount":-5}`},
		{"zero amount", `{"category":"Food","amount":0}`},
		{"missing category", `{"amount":5}`},
		{"bad currency", `{"category":"Food","amount":5,"currency":"euro"}`},
		{"bad date", `{"category":"Food","amount":5,"date":"15/04/2024"}`},
		{"unknown field", `{"category":"Food","amount":5,"tip":1}`},
		{"malformed", `{"category":`},
		{"trailing data", `{"category":"Food","amount":5} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv.Handler, http.MethodPost, "/api/expenses", "alice", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d body = %s, want 400", rec.Code, rec.Body)
			}
		})
	}
}

func TestInvalidPathID(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, path := range []string{"/api/expenses/abc", "/api/expenses/0", "/api/recurring/-1", "/api/reminders/x"} {
		if rec := do(t, srv.Handler, http.MethodDelete, path, "alice", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("DELETE %s status = %d, want 400", path, rec.Code)
		}
	}
}

func TestSessionAppliesRecurring(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv.Handler, http.MethodPost, "/api/recurring", "alice",
		`{"description":"Rent","category":"Rent","amount":1200,"interval":"Monthly","start_date":"2024-03-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create recurring status = %d body = %s", rec.Code, rec.Body)
	}
	def := decode[recurringResponse](t, rec)
	if def.Interval != core.Monthly || def.LastApplied != nil {
		t.Errorf("definition = %+v", def)
	}

	type session struct {
		Inserted int `json:"inserted"`
	}
	first := decode[session](t, do(t, srv.Handler, http.MethodPost, "/api/session", "alice", ""))
	if first.Inserted != 2 {
		t.Errorf("first session inserted = %d, want 2 (Mar 1, Apr 1)", first.Inserted)
	}
	second := decode[session](t, do(t, srv.Handler, http.MethodPost, "/api/session", "alice", ""))
	if second.Inserted != 0 {
		t.Errorf("second session inserted = %d, want 0", second.Inserted)
	}

	list := decode[[]recurringResponse](t, do(t, srv.Handler, http.MethodGet, "/api/recurring", "alice", ""))
	if len(list) != 1 || list[0].LastApplied == nil || list[0].LastApplied.String() != "2024-04-01" {
		t.Errorf("recurring list = %+v", list)
	}

	bad := do(t, srv.Handler, http.MethodPost, "/api/recurring", "alice",
		`{"description":"Gym","category":"Health","amount":30,"interval":"yearly"}`)
	if bad.Code != http.StatusBadRequest {
		t.Errorf("unknown interval status = %d, want 400", bad.Code)
	}
}

func TestDashboardAndBudgets(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler

	if rec := do(t, h, http.MethodPost, "/api/budgets", "alice", `{"category":"Food","monthly_limit":100}`); rec.Code != http.StatusOK {
		t.Fatalf("set budget status = %d body = %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/api/budgets", "alice", `{"category":"Rent","monthly_limit":1000}`); rec.Code != http.StatusOK {
		t.Fatalf("set budget status = %d", rec.Code)
	}
	for _, body := range []string{
		`{"category":"Food","amount":90,"date":"2024-04-10"}`,
		`{"category":"Rent","amount":50,"date":"2024-04-11"}`,
		`{"category":"Food","amount":999,"date":"2024-03-31"}`,
	} {
		if rec := do(t, h, http.MethodPost, "/api/expenses", "alice", body); rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d body = %s", rec.Code, rec.Body)
		}
	}

	dash := decode[struct {
		Total        float64                `json:"total"`
		TopCategory  string                 `json:"top_category"`
		ExpenseCount int                    `json:"expense_count"`
		Recent       []expenseResponse      `json:"recent"`
		Alerts       []budgetStatusResponse `json:"budget_alerts"`
	}](t, do(t, h, http.MethodGet, "/api/dashboard", "alice", ""))

	if dash.Total != 140 || dash.TopCategory != "Food" || dash.ExpenseCount != 2 {
		t.Errorf("dashboard = %+v", dash)
	}
	if len(dash.Recent) != 3 || dash.Recent[0].Category != "Rent" {
		t.Errorf("recent = %+v, want 3 newest first", dash.Recent)
	}
	if len(dash.Alerts) != 1 || dash.Alerts[0].Category != "Food" || dash.Alerts[0].PercentUsed != 90 {
		t.Errorf("alerts = %+v, want Food at 90%%", dash.Alerts)
	}

	status := decode[[]budgetStatusResponse](t, do(t, h, http.MethodGet, "/api/budget-status", "alice", ""))
	if len(status) != 2 || status[0].Category != "Food" || status[1].Category != "Rent" {
		t.Errorf("budget status = %+v", status)
	}

	if rec := do(t, h, http.MethodDelete, "/api/budgets/Rent", "alice", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete budget status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/budgets/Rent", "alice", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete budget status = %d, want 404", rec.Code)
	}
	budgets := decode[[]budgetResponse](t, do(t, h, http.MethodGet, "/api/budgets", "alice", ""))
	if len(budgets) != 1 || budgets[0].Category != "Food" {
		t.Errorf("budgets = %+v", budgets)
	}
}

func TestEmptyMonthDashboard(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv.Handler, http.MethodGet, "/api/dashboard", "carol", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	dash := decode[dashboardResponse](t, rec)
	if dash.Total.Cents != 0 || dash.TopCategory != core.NoCategory || dash.ExpenseCount != 0 {
		t.Errorf("dashboard = %+v", dash)
	}
	if !strings.Contains(rec.Body.String(), `"recent":[]`) {
		t.Errorf("recent should encode as an empty array: %s", rec.Body)
	}
}

func TestReportsValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/api/report", http.StatusOK},
		{"/api/report?year=2024&month=2", http.StatusOK},
		{"/api/report?month=13", http.StatusBadRequest},
		{"/api/report?year=abc", http.StatusBadRequest},
		{"/api/daily-spending?year=2024&month=4", http.StatusOK},
		{"/api/trends", http.StatusOK},
		{"/api/trends?months=0", http.StatusBadRequest},
		{"/api/trends?months=37", http.StatusBadRequest},
		{"/api/predictions?months=3", http.StatusOK},
		{"/api/predictions?months=25", http.StatusBadRequest},
		{"/api/expenses?min_amount=10&max_amount=5", http.StatusBadRequest},
		{"/api/expenses?from=2024-05-01&to=2024-04-01", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := do(t, srv.Handler, http.MethodGet, tt.path, "alice", ""); rec.Code != tt.want {
				t.Errorf("status = %d body = %s, want %d", rec.Code, rec.Body, tt.want)
			}
		})
	}
}

func TestReportBreakdown(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, body := range []string{
		`{"category":"Food","amount":10,"date":"2024-02-03"}`,
		`{"category":"Food","amount":5.25,"date":"2024-02-20"}`,
		`{"category":"Rent","amount":700,"date":"2024-02-01"}`,
	} {
		do(t, srv.Handler, http.MethodPost, "/api/expenses", "alice", body)
	}

	report := decode[core.MonthOverview](t, do(t, srv.Handler, http.MethodGet, "/api/report?year=2024&month=2", "alice", ""))
	if report.Total.Cents != 71525 {
		t.Errorf("total = %d, want 71525", report.Total.Cents)
	}
	var sum int64
	for _, c := range report.ByCategory {
		sum += c.Amount.Cents
	}
	if sum != report.Total.Cents || len(report.ByCategory) != 2 || report.ByCategory[0].Name != "Rent" {
		t.Errorf("breakdown = %+v", report.ByCategory)
	}
}

func TestExportCSV(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	do(t, srv.Handler, http.MethodPost, "/api/expenses", "alice", `{"category":"Food","amount":3,"date":"2024-04-01"}`)
	do(t, srv.Handler, http.MethodPost, "/api/expenses", "alice", `{"category":"Rent","amount":700,"date":"2024-04-02"}`)

	rec := do(t, srv.Handler, http.MethodGet, "/api/export", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 || lines[0] != "ID,Category,Amount,Date" ||
		!strings.HasSuffix(lines[1], ",Rent,700.00,2024-04-02") ||
		!strings.HasSuffix(lines[2], ",Food,3.00,2024-04-01") {
		t.Errorf("csv =\n%s", rec.Body)
	}
}

func TestCategoriesAndReminders(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler

	rec := do(t, h, http.MethodPost, "/api/categories", "", `{"name":"  Travel "}`)
	if rec.Code != http.StatusCreated || decode[categoryRequest](t, rec).Name != "Travel" {
		t.Fatalf("add category status = %d body = %s", rec.Code, rec.Body)
	}
	cats := decode[[]string](t, do(t, h, http.MethodGet, "/api/categories", "", ""))
	if strings.Join(cats, ",") != "Food,Rent,Travel" {
		t.Errorf("categories = %v", cats)
	}
	if rec := do(t, h, http.MethodPost, "/api/categories", "", `{"name":"   "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank category status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/categories/Travel", "", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete category status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/categories/Travel", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete category status = %d, want 404", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/api/reminders", "alice", `{"due_date":"2024-05-01"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("reminder without title status = %d, want 400", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/reminders", "alice", `{"title":"Pay rent","due_date":"2024-05-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create reminder status = %d body = %s", rec.Code, rec.Body)
	}
	rem := decode[reminderResponse](t, rec)
	if rems := decode[[]reminderResponse](t, do(t, h, http.MethodGet, "/api/reminders", "alice", "")); len(rems) != 1 {
		t.Errorf("reminders = %+v", rems)
	}
	if rec := do(t, h, http.MethodDelete, "/api/reminders/"+jsonNumber(rem.ID), "alice", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete reminder status = %d", rec.Code)
	}
}

func TestStoreFailureIsRetryable(t *testing.T) {
	store := memory.New(nil)
	srv := NewServer(newServices(store, failingQueryStore{Store: store}), Options{Now: func() time.Time { return fixedNow }})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rec := do(t, srv.Handler, http.MethodGet, "/api/expenses", "alice", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if strings.Contains(rec.Body.String(), "database is locked") {
		t.Errorf("store detail leaked: %s", rec.Body)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(o *Options) { o.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		if rec := do(t, srv.Handler, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}
	rec := do(t, srv.Handler, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Errorf("status = %d Retry-After = %q, want 429 with Retry-After", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	if rec := do(t, srv.Handler, http.MethodPut, "/api/expenses", "alice", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
