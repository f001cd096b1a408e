package http

import (
	"time"

	"expensetracker/internal/core"
)

type expenseResponse struct {
	ID         int64      `json:"id"`
	Category   string     `json:"category"`
	Amount     core.Money `json:"amount"`
	Currency   string     `json:"currency"`
	Date       core.Date  `json:"date"`
	Timestamp  time.Time  `json:"timestamp"`
	ReceiptRef string     `json:"receipt_ref,omitempty"`
}

func toExpenseResponse(e core.ExpenseRecord) expenseResponse {
	return expenseResponse{
		ID:         e.ID,
		Category:   e.Category,
		Amount:     e.Amount,
		Currency:   e.Currency,
		Date:       e.Date(),
		Timestamp:  e.Timestamp,
		ReceiptRef: e.ReceiptRef,
	}
}

func toExpenseResponses(recs []core.ExpenseRecord) []expenseResponse {
	out := make([]expenseResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toExpenseResponse(r))
	}
	return out
}

type createExpenseRequest struct {
	Category   string     `json:"category"`
	Amount     core.Money `json:"amount"`
	Currency   string     `json:"currency"`
	Date       *core.Date `json:"date"`
	ReceiptRef string     `json:"receipt_ref"`
}

type recurringResponse struct {
	ID          int64         `json:"id"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Amount      core.Money    `json:"amount"`
	Interval    core.Interval `json:"interval"`
	StartDate   core.Date     `json:"start_date"`
	LastApplied *core.Date    `json:"last_applied,omitempty"`
}

func toRecurringResponse(d core.RecurrenceDefinition) recurringResponse {
	return recurringResponse{
		ID:          d.ID,
		Description: d.Description,
		Category:    d.Category,
		Amount:      d.Amount,
		Interval:    d.Interval,
		StartDate:   d.StartDate,
		LastApplied: d.LastApplied,
	}
}

type createRecurringRequest struct {
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Amount      core.Money `json:"amount"`
	Interval    string     `json:"interval"`
	StartDate   *core.Date `json:"start_date"`
}

type budgetResponse struct {
	Category     string     `json:"category"`
	MonthlyLimit core.Money `json:"monthly_limit"`
}

type setBudgetRequest struct {
	Category     string     `json:"category"`
	MonthlyLimit core.Money `json:"monthly_limit"`
}

type budgetStatusResponse struct {
	Category    string     `json:"category"`
	Spent       core.Money `json:"spent"`
	Limit       core.Money `json:"limit"`
	PercentUsed int64      `json:"percent_used"`
}

func toBudgetStatusResponses(statuses []core.BudgetStatus) []budgetStatusResponse {
	out := make([]budgetStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, budgetStatusResponse{
			Category:    s.Category,
			Spent:       s.Spent,
			Limit:       s.Limit,
			PercentUsed: s.PercentUsed(),
		})
	}
	return out
}

type reminderResponse struct {
	ID      int64     `json:"id"`
	Title   string    `json:"title"`
	DueDate core.Date `json:"due_date"`
	Notes   string    `json:"notes,omitempty"`
}

type createReminderRequest struct {
	Title   string    `json:"title"`
	DueDate core.Date `json:"due_date"`
	Notes   string    `json:"notes"`
}

type categoryRequest struct {
	Name string `json:"name"`
}

type dashboardResponse struct {
	Year         int                    `json:"year"`
	Month        int                    `json:"month"`
	Total        core.Money             `json:"total"`
	TopCategory  string                 `json:"top_category"`
	ExpenseCount int                    `json:"expense_count"`
	Recent       []expenseResponse      `json:"recent"`
	Alerts       []budgetStatusResponse `json:"budget_alerts"`
}

type predictionsResponse struct {
	LookbackMonths int               `json:"lookback_months"`
	Predictions    []core.Prediction `json:"predictions"`
}
