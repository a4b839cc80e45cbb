package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rendis/unitconsole/internal/api"
	"github.com/rendis/unitconsole/pkg/schema"
)

// UnitDirectory manages units on the backend. *api.Client implements it.
type UnitDirectory interface {
	ListUnits(ctx context.Context) ([]schema.Unit, error)
	GetUnit(ctx context.Context, id int64) (schema.Unit, error)
	UpdateUnit(ctx context.Context, u schema.Unit) (schema.Unit, error)
	DeleteUnit(ctx context.Context, id int64) error
	Profile(ctx context.Context) (schema.Profile, error)
}

var _ UnitDirectory = (*api.Client)(nil)

// units returns the directory or writes 501 when none is configured.
func (s *PanelServer) units(w http.ResponseWriter) (UnitDirectory, bool) {
	if s.deps.Units == nil {
		writeError(w, http.StatusNotImplemented, "unit management is not configured")
		return nil, false
	}
	return s.deps.Units, true
}

func (s *PanelServer) handleListUnits(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.units(w)
	if !ok {
		return
	}
	units, err := dir.ListUnits(r.Context())
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := units[:0:0]
		for _, u := range units {
			if u.Status == status {
				filtered = append(filtered, u)
			}
		}
		units = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units, "total": len(units)})
}

func (s *PanelServer) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.units(w)
	if !ok {
		return
	}
	id, err := api.ParseUnitID(r.PathValue("id"))
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	u, err := dir.GetUnit(r.Context(), id)
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleUpdateUnit replaces a unit. The path id wins over an id in the body.
func (s *PanelServer) handleUpdateUnit(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.units(w)
	if !ok {
		return
	}
	id, err := api.ParseUnitID(r.PathValue("id"))
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	var u schema.Unit
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	u.ID = id
	stored, err := dir.UpdateUnit(r.Context(), u)
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *PanelServer) handleDeleteUnit(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.units(w)
	if !ok {
		return
	}
	id, err := api.ParseUnitID(r.PathValue("id"))
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	if err := dir.DeleteUnit(r.Context(), id); err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.units(w)
	if !ok {
		return
	}
	p, err := dir.Profile(r.Context())
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
