package panel

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/unitconsole/pkg/schema"
)

type fakeUnits struct {
	mu      sync.Mutex
	units   map[int64]schema.Unit
	updated []schema.Unit
}

func newFakeUnits() *fakeUnits {
	return &fakeUnits{units: map[int64]schema.Unit{
		1: {ID: 1, Name: "Pump A", Status: schema.UnitOnline},
		2: {ID: 2, Name: "Pump B", Status: schema.UnitOffline},
	}}
}

func (f *fakeUnits) ListUnits(context.Context) ([]schema.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []schema.Unit{f.units[1], f.units[2]}, nil
}

func (f *fakeUnits) GetUnit(_ context.Context, id int64) (schema.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	if !ok {
		return schema.Unit{}, schema.NewErrorf(schema.ErrCodeNotFound, "unit %d not found", id)
	}
	return u, nil
}

func (f *fakeUnits) UpdateUnit(_ context.Context, u schema.Unit) (schema.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.Status != schema.UnitOnline && u.Status != schema.UnitOffline {
		return schema.Unit{}, schema.NewError(schema.ErrCodeValidation, "bad status")
	}
	f.units[u.ID] = u
	f.updated = append(f.updated, u)
	return u, nil
}

func (f *fakeUnits) DeleteUnit(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.units[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "unit %d not found", id)
	}
	delete(f.units, id)
	return nil
}

func (f *fakeUnits) Profile(context.Context) (schema.Profile, error) {
	var p schema.Profile
	p.EntraID.Email = "ana@example.com"
	return p, nil
}

func TestUnits_NotConfigured(t *testing.T) {
	p := newTestPanel(t)
	rec := p.do(t, http.MethodGet, "/api/units", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestUnits_ListAndFilter(t *testing.T) {
	p := newTestPanel(t)
	p.srv.deps.Units = newFakeUnits()

	rec := p.do(t, http.MethodGet, "/api/units", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decodeBody(t, rec)["total"])

	rec = p.do(t, http.MethodGet, "/api/units?status=offline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 1.0, body["total"])
	units := body["units"].([]any)
	assert.Equal(t, "Pump B", units[0].(map[string]any)["name"])
}

func TestUnits_GetUpdateDelete(t *testing.T) {
	p := newTestPanel(t)
	units := newFakeUnits()
	p.srv.deps.Units = units

	rec := p.do(t, http.MethodGet, "/api/units/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pump A", decodeBody(t, rec)["name"])

	rec = p.do(t, http.MethodPut, "/api/units/1", `{"id":99,"name":"Pump A","status":"offline"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, units.updated, 1)
	assert.Equal(t, int64(1), units.updated[0].ID, "path id wins")
	assert.Equal(t, schema.UnitOffline, units.updated[0].Status)

	rec = p.do(t, http.MethodPut, "/api/units/1", `{"status":"broken"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = p.do(t, http.MethodDelete, "/api/units/2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = p.do(t, http.MethodGet, "/api/units/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = p.do(t, http.MethodGet, "/api/units/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileRoute(t *testing.T) {
	p := newTestPanel(t)
	p.srv.deps.Units = newFakeUnits()

	rec := p.do(t, http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entra := decodeBody(t, rec)["entraID"].(map[string]any)
	assert.Equal(t, "ana@example.com", entra["email"])
}
