package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/items"
	"github.com/duoapp/duo/internal/store"
)

type nameRequest struct {
	Name string `json:"name"`
}

// CommandsResponse is the body of GET /api/commands.
type CommandsResponse struct {
	Commands  map[items.CommandID]bool `json:"commands"`
	NewName   string                   `json:"new_name"`
	Selection items.Selection          `json:"selection"`
}

func (s *Server) requireData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ctrl == nil {
			s.respondError(w, http.StatusServiceUnavailable,
				"Could not initialize the database: "+s.dataUnavailable().Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.ctrl.Items())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.apiMu.Lock()
	defer s.apiMu.Unlock()

	if err := s.ctrl.Load(r.Context()); err != nil {
		s.respondOpError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.ctrl.Items())
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.ctrl.Selected()
	s.respondJSON(w, http.StatusOK, CommandsResponse{
		Commands:  s.ctrl.Availability(),
		NewName:   s.ctrl.NewName(),
		Selection: items.Selection{Selected: ok, Record: sel},
	})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	s.apiMu.Lock()
	defer s.apiMu.Unlock()

	s.ctrl.SetNewName(req.Name)
	if err := s.ctrl.Add(r.Context()); err != nil {
		s.respondOpError(w, err)
		return
	}

	// Adds are serialized by apiMu, so the new record is last.
	all := s.ctrl.Items()
	if len(all) == 0 {
		s.respondError(w, http.StatusInternalServerError, "item list is empty after add")
		return
	}
	s.respondJSON(w, http.StatusCreated, all[len(all)-1])
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	s.apiMu.Lock()
	defer s.apiMu.Unlock()

	if err := s.ctrl.Select(id); err != nil {
		s.respondOpError(w, err)
		return
	}
	if err := s.ctrl.SetSelectedName(req.Name); err != nil {
		s.respondOpError(w, err)
		return
	}
	if err := s.ctrl.Update(r.Context()); err != nil {
		s.respondOpError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, store.Record{ID: id, Name: req.Name})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	s.apiMu.Lock()
	defer s.apiMu.Unlock()

	if err := s.ctrl.Select(id); err != nil {
		s.respondOpError(w, err)
		return
	}
	if err := s.ctrl.Remove(r.Context()); err != nil {
		s.respondOpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid item ID")
		return 0, false
	}
	return id, true
}

// respondOpError maps controller and gateway errors onto HTTP statuses.
func (s *Server) respondOpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, items.ErrCommandDisabled):
		status = http.StatusBadRequest
	case errors.Is(err, items.ErrUnknownRecord):
		status = http.StatusNotFound
	case store.IsConstraint(err):
		status = http.StatusUnprocessableEntity
	case store.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{
		"error":   true,
		"message": message,
		"code":    status,
	})
}
