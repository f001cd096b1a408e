package http

import (
	"net/http"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
)

const recentExpensesOnDashboard = 5

// handleDashboard summarizes the current month: total, top category, count,
// the latest expenses and budgets past the alert threshold.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	ctx := r.Context()
	today := s.today()
	year, month := today.Year(), today.Month()

	overview, err := s.svc.Analytics.MonthOverview(ctx, owner, year, month)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	top, err := s.svc.Analytics.TopCategoryForMonth(ctx, owner, year, month)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	count, err := s.svc.Analytics.ExpenseCountForMonth(ctx, owner, year, month)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	recent, err := s.svc.Analytics.RecentExpenses(ctx, owner, recentExpensesOnDashboard)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	statuses, err := s.svc.Budgets.BudgetStatus(ctx, owner, today)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}

	NewJSONResponse().Body(dashboardResponse{
		Year:         year,
		Month:        month,
		Total:        overview.Total,
		TopCategory:  top,
		ExpenseCount: count,
		Recent:       toExpenseResponses(recent),
		Alerts:       toBudgetStatusResponses(services.Alerts(statuses, int64(s.opts.BudgetAlertPercent))),
	}).Write(w)
}

// handleReport returns the month total and its category breakdown.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	params, err := ParseMonthParams(r.URL.Query(), s.today())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}

	overview, err := s.svc.Analytics.MonthOverview(r.Context(), owner, params.Year, params.Month)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	if overview.ByCategory == nil {
		overview.ByCategory = []core.CategoryAmount{}
	}
	NewJSONResponse().Body(overview).Write(w)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	months, err := boundedIntParam(r.URL.Query(), "months", s.opts.TrendMonths, 1, 36)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}

	points, err := s.svc.Analytics.MonthlyTrend(r.Context(), owner, months, s.today())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(points).Write(w)
}

func (s *Server) handleDailySpending(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	params, err := ParseMonthParams(r.URL.Query(), s.today())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}

	points, err := s.svc.Analytics.DailySpending(r.Context(), owner, params.Year, params.Month)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(points).Write(w)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	lookback, err := boundedIntParam(r.URL.Query(), "months", s.opts.PredictionLookbackMonths, 1, 24)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}

	preds, err := s.svc.Analytics.Predictions(r.Context(), owner, lookback, s.today())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(predictionsResponse{LookbackMonths: lookback, Predictions: preds}).Write(w)
}
