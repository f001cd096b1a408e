package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"expensetracker/internal/config"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/services"
)

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services the handlers call.
type Services struct {
	Expenses   *services.ExpenseService
	Catalog    *services.CatalogService
	Analytics  *services.AnalyticsService
	Budgets    *services.BudgetEvaluator
	Recurrence *services.RecurrenceEngine
}

// Options tunes the server. Zero values fall back to the config defaults.
type Options struct {
	Addr                     string
	RequestTimeout           time.Duration
	RateLimitPerMinute       int
	TrendMonths              int
	PredictionLookbackMonths int
	BudgetAlertPercent       int
	Logger                   *applog.Logger
	// Pinger is checked by /readyz when set.
	Pinger Pinger
	// Now is the clock used for "today"; defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps the process configuration onto server options.
func OptionsFromConfig(cfg *config.Config, logger *applog.Logger, pinger Pinger) Options {
	return Options{
		Addr:                     ":" + cfg.Port,
		RequestTimeout:           cfg.RequestTimeout,
		RateLimitPerMinute:       cfg.RateLimit,
		TrendMonths:              cfg.TrendMonths,
		PredictionLookbackMonths: cfg.PredictionLookbackMonths,
		BudgetAlertPercent:       cfg.BudgetAlertPercent,
		Logger:                   logger,
		Pinger:                   pinger,
	}
}

func (o *Options) applyDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.RateLimitPerMinute <= 0 {
		o.RateLimitPerMinute = 120
	}
	if o.TrendMonths <= 0 {
		o.TrendMonths = 6
	}
	if o.PredictionLookbackMonths <= 0 {
		o.PredictionLookbackMonths = 3
	}
	if o.BudgetAlertPercent <= 0 {
		o.BudgetAlertPercent = 80
	}
	if o.Logger == nil {
		o.Logger = applog.Discard()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// appMetrics are exported on /metrics.
type appMetrics struct {
	expensesCreated int64
	expensesDeleted int64
	sessions        int64
	uptime          time.Time
}

// Server is the JSON API server.
type Server struct {
	http.Server
	svc     Services
	opts    Options
	logger  *applog.Logger
	metrics appMetrics

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to stop it and its background cleanup.
func NewServer(svc Services, opts Options) *Server {
	opts.applyDefaults()
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		svc:              svc,
		opts:             opts,
		logger:           logger,
		metrics:          appMetrics{uptime: time.Now()},
		securityDetector: security.NewDetector(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			CleanupInterval:   5 * time.Minute,
		}),
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.RequestTimeout,
		WriteTimeout:      opts.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/session", s.handleSession)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/export", s.handleExportCSV)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/trends", s.handleTrends)
	mux.HandleFunc("GET /api/daily-spending", s.handleDailySpending)
	mux.HandleFunc("GET /api/predictions", s.handlePredictions)

	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /api/budgets", s.handleSetBudget)
	mux.HandleFunc("DELETE /api/budgets/{category}", s.handleDeleteBudget)
	mux.HandleFunc("GET /api/budget-status", s.handleBudgetStatus)

	mux.HandleFunc("GET /api/recurring", s.handleListRecurring)
	mux.HandleFunc("POST /api/recurring", s.handleCreateRecurring)
	mux.HandleFunc("DELETE /api/recurring/{id}", s.handleDeleteRecurring)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleAddCategory)
	mux.HandleFunc("DELETE /api/categories/{name}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/reminders", s.handleListReminders)
	mux.HandleFunc("POST /api/reminders", s.handleCreateReminder)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.handleDeleteReminder)
}

// middleware wraps h, outermost first: trace, logger context, suspicious
// request logging, security headers, rate limit, request timeout.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = http.TimeoutHandler(h, s.opts.RequestTimeout, `{"error":"request timed out"}`)
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.securityDetector.Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = applog.Middleware(s.logger)(h)
	return s.traceMiddleware.Middleware(h)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request, retryAfter int) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").
		Header("Retry-After", strconv.Itoa(retryAfter)).
		Write(w)
}

// today is the current calendar date in UTC.
func (s *Server) today() core.Date {
	return core.DateOf(s.opts.Now())
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// writeError logs err with request context and writes the mapped response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := FromError(err)
	logger := applog.FromContext(r.Context())
	switch resp.statusCode {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldError, err,
			applog.FieldRetryable, core.IsRetryable(err))
	default:
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldError, err)
	}
	resp.Write(w)
}

func (s *Server) countCreated() { atomic.AddInt64(&s.metrics.expensesCreated, 1) }
func (s *Server) countDeleted() { atomic.AddInt64(&s.metrics.expensesDeleted, 1) }
