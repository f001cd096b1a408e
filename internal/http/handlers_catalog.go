package http

import (
	"net/http"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// Categories are shared by all owners, so these routes ignore X-Owner.

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.svc.Catalog.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	NewJSONResponse().Body(cats).Write(w)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	name, err := s.svc.Catalog.AddCategory(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	Created(categoryRequest{Name: name}).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteCategory(r.Context(), sanitizeInput(r.PathValue("name"))); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	rems, err := s.svc.Catalog.ListReminders(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]reminderResponse, 0, len(rems))
	for _, rem := range rems {
		out = append(out, reminderResponse{ID: rem.ID, Title: rem.Title, DueDate: rem.DueDate, Notes: rem.Notes})
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	var req createReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	rem, err := s.svc.Catalog.CreateReminder(r.Context(), core.Reminder{
		Owner:   owner,
		Title:   sanitizeInput(req.Title),
		DueDate: req.DueDate,
		Notes:   sanitizeInput(req.Notes),
	})
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	Created(reminderResponse{ID: rem.ID, Title: rem.Title, DueDate: rem.DueDate, Notes: rem.Notes}).Write(w)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
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
	if err := s.svc.Catalog.DeleteReminder(r.Context(), owner, id); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NoContent().Write(w)
}
