package http

import (
	"net/http"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	defs, err := s.svc.Budgets.ListBudgets(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]budgetResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, budgetResponse{Category: d.Category, MonthlyLimit: d.MonthlyLimit})
	}
	NewJSONResponse().Body(out).Write(w)
}

// handleSetBudget creates or replaces the owner's limit for a category.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	var req setBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	def := core.BudgetDefinition{
		Owner:        owner,
		Category:     sanitizeInput(req.Category),
		MonthlyLimit: req.MonthlyLimit,
	}
	if err := s.svc.Budgets.SetBudget(r.Context(), def); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Body(budgetResponse{Category: def.Category, MonthlyLimit: def.MonthlyLimit}).Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.Budgets.DeleteBudget(r.Context(), owner, sanitizeInput(r.PathValue("category"))); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	statuses, err := s.svc.Budgets.BudgetStatus(r.Context(), owner, s.today())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(toBudgetStatusResponses(statuses)).Write(w)
}
