package http

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"expensetracker/internal/core"
	"expensetracker/internal/export"
	applog "expensetracker/internal/log"
)

// handleSession applies the owner's due recurring expenses. Clients call it
// once when a user signs in.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpApply, err)
		return
	}

	today := s.today()
	inserted, err := s.svc.Recurrence.ApplyDue(r.Context(), owner, today)
	if err != nil {
		s.writeError(w, r, applog.OpApply, err)
		return
	}
	atomic.AddInt64(&s.metrics.sessions, 1)

	NewJSONResponse().Body(map[string]any{
		"owner":    owner,
		"today":    today,
		"inserted": inserted,
	}).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	filter, err := ParseExpenseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}

	recs, err := s.svc.Analytics.SearchExpenses(r.Context(), owner, filter)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Body(toExpenseResponses(recs)).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	rec := core.ExpenseRecord{
		Owner:      owner,
		Category:   sanitizeInput(req.Category),
		Amount:     req.Amount,
		Currency:   sanitizeInput(req.Currency),
		ReceiptRef: sanitizeInput(req.ReceiptRef),
	}
	// A backdated expense is booked at the start of its day; today's keep
	// the current time so they sort after earlier entries.
	if req.Date != nil && !req.Date.Equal(s.today()) {
		if err := req.Date.Validate(); err != nil {
			s.writeError(w, r, applog.OpCreate, &core.ValidationError{Field: "date", Err: err})
			return
		}
		rec.Timestamp = req.Date.Time
	}

	created, err := s.svc.Expenses.CreateExpense(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	s.countCreated()

	Created(toExpenseResponse(created)).
		Header("Location", "/api/expenses/"+strconv.FormatInt(created.ID, 10)).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}

	if err := s.svc.Expenses.DeleteExpense(r.Context(), owner, id); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	s.countDeleted()
	NoContent().Write(w)
}

// handleExportCSV streams the owner's expenses, newest first.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}
	recs, err := s.svc.Analytics.SearchExpenses(r.Context(), owner, core.ExpenseFilter{})
	if err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses-%s.csv"`, s.today()))
	if err := export.WriteCSV(w, recs); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "CSV export failed",
			applog.FieldOperation, applog.OpExport,
			applog.FieldOwner, owner,
			applog.FieldError, err)
	}
}
