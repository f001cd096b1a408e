package http

import (
	"net/http"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}

	defs, err := s.svc.Catalog.ListRecurring(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]recurringResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, toRecurringResponse(d))
	}
	NewJSONResponse().Body(out).Write(w)
}

// handleCreateRecurring stores a definition. Its first occurrence is
// materialized by the next session start or scheduler pass, not here.
func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	var req createRecurringRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	start := s.today()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	def, err := s.svc.Catalog.CreateRecurring(r.Context(), core.RecurrenceDefinition{
		Owner:       owner,
		Description: sanitizeInput(req.Description),
		Category:    sanitizeInput(req.Category),
		Amount:      req.Amount,
		Interval:    core.Interval(req.Interval),
		StartDate:   start,
	})
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Recurring expense created",
		applog.FieldOwner, owner,
		applog.FieldRecurrenceID, def.ID,
		applog.FieldInterval, string(def.Interval),
		applog.FieldCategory, def.Category)
	Created(toRecurringResponse(def)).Write(w)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
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

	if err := s.svc.Catalog.DeleteRecurring(r.Context(), owner, id); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NoContent().Write(w)
}
