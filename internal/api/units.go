package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rendis/unitconsole/pkg/schema"
)

// ListUnits returns every unit the caller may see.
func (c *Client) ListUnits(ctx context.Context) ([]schema.Unit, error) {
	var units []schema.Unit
	if err := c.send(ctx, http.MethodGet, c.origin, "/unit", nil, nil, &units); err != nil {
		return nil, err
	}
	if units == nil {
		units = []schema.Unit{}
	}
	return units, nil
}

// GetUnit reads one unit.
func (c *Client) GetUnit(ctx context.Context, id int64) (schema.Unit, error) {
	var u schema.Unit
	if err := c.send(ctx, http.MethodGet, c.origin, unitPath(id), nil, nil, &u); err != nil {
		return schema.Unit{}, err
	}
	return u, nil
}

// UpdateUnit replaces a unit and returns what the backend stored. An empty
// response body yields u itself.
func (c *Client) UpdateUnit(ctx context.Context, u schema.Unit) (schema.Unit, error) {
	if err := ValidateUnit(u); err != nil {
		return schema.Unit{}, err
	}
	var stored *schema.Unit
	if err := c.send(ctx, http.MethodPut, c.origin, unitPath(u.ID), nil, u, &stored); err != nil {
		return schema.Unit{}, err
	}
	c.logger.InfoContext(ctx, "unit updated", slog.Int64("unit_id", u.ID), slog.String("status", u.Status))
	if stored == nil {
		return u, nil
	}
	return *stored, nil
}

// DeleteUnit removes a unit.
func (c *Client) DeleteUnit(ctx context.Context, id int64) error {
	if err := c.send(ctx, http.MethodDelete, c.origin, unitPath(id), nil, nil, nil); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "unit deleted", slog.Int64("unit_id", id))
	return nil
}

// Profile reads the signed-in user.
func (c *Client) Profile(ctx context.Context) (schema.Profile, error) {
	var p schema.Profile
	if err := c.send(ctx, http.MethodGet, c.origin, "/user/profile", nil, nil, &p); err != nil {
		return schema.Profile{}, err
	}
	return p, nil
}

// ValidateUnit checks a unit before it is written.
func ValidateUnit(u schema.Unit) error {
	if u.ID <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "unit id must be positive")
	}
	if u.Status != schema.UnitOnline && u.Status != schema.UnitOffline {
		return schema.NewErrorf(schema.ErrCodeValidation, "unit status must be %q or %q, got %q",
			schema.UnitOnline, schema.UnitOffline, u.Status)
	}
	return nil
}

// ParseUnitID parses a unit id from a path segment or argument.
func ParseUnitID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid unit id %q", s)
	}
	return id, nil
}

func unitPath(id int64) string {
	return "/unit/" + strconv.FormatInt(id, 10)
}
