// Package history keeps the list of journey runs of one unit current, from the
// status endpoint and from flow start/completion pushes.
package history

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/rendis/unitconsole/internal/expressions"
	"github.com/rendis/unitconsole/pkg/schema"
)

// PlaceholderTelemetry marks a flow first seen through its completion push.
const PlaceholderTelemetry = "Flow started before connection"

// Board is the flow history of one unit, newest first. It is safe for concurrent use.
type Board struct {
	unitID   string
	registry *expressions.Registry
	now      func() time.Time

	mu    sync.RWMutex
	flows []schema.FlowInstance
}

// NewBoard creates an empty board for unitID. registry is used by Filter and may be nil.
func NewBoard(unitID string, registry *expressions.Registry, now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{unitID: unitID, registry: registry, now: now}
}

// UnitID returns the unit the board tracks.
func (b *Board) UnitID() string { return b.unitID }

// Replace swaps in a freshly loaded list.
func (b *Board) Replace(flows []schema.FlowInstance) {
	next := slices.Clone(flows)
	sortNewestFirst(next)
	b.mu.Lock()
	b.flows = next
	b.mu.Unlock()
}

// ApplyStarted adds a started flow of this unit. It reports false for another
// unit or an instance already on the board.
func (b *Board) ApplyStarted(fs schema.FlowStarted) bool {
	if fs.UnitID != b.unitID {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexLocked(fs.InstanceID) >= 0 {
		return false
	}
	b.flows = append(b.flows, schema.FlowInstance{
		InstanceID:      fs.InstanceID,
		RuntimeStatus:   fs.Status,
		CreatedTime:     fs.StartTime,
		LastUpdatedTime: fs.StartTime,
		Input:           flowInput(fs.UnitID, fs.Telemetry),
	})
	sortNewestFirst(b.flows)
	return true
}

// ApplyCompleted records the final status of a flow of this unit. A flow that is
// not on the board yet is added with placeholder telemetry.
func (b *Board) ApplyCompleted(fc schema.FlowCompleted) bool {
	if fc.UnitID != b.unitID {
		return false
	}
	stamp := b.now().UTC().Format(time.RFC3339Nano)

	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexLocked(fc.InstanceID); i >= 0 {
		b.flows[i].RuntimeStatus = fc.Status
		b.flows[i].LastUpdatedTime = stamp
		return true
	}
	b.flows = append(b.flows, schema.FlowInstance{
		InstanceID:      fc.InstanceID,
		RuntimeStatus:   fc.Status,
		CreatedTime:     stamp,
		LastUpdatedTime: stamp,
		Input:           flowInput(fc.UnitID, PlaceholderTelemetry),
	})
	sortNewestFirst(b.flows)
	return true
}

// List returns the flows, newest first.
func (b *Board) List() []schema.FlowInstance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.flows)
}

// Filter returns the flows matching expression, newest first. An empty
// expression matches everything. See expressions.RecordFields for the names an
// expression can use.
func (b *Board) Filter(ctx context.Context, expression string) ([]schema.FlowInstance, error) {
	flows := b.List()
	if expression == "" {
		return flows, nil
	}
	if b.registry == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "filtering is not configured")
	}

	out := flows[:0]
	for _, f := range flows {
		ok, err := b.registry.Match(ctx, expression, Record(f))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (b *Board) indexLocked(instanceID string) int {
	return slices.IndexFunc(b.flows, func(f schema.FlowInstance) bool { return f.InstanceID == instanceID })
}

// Record exposes a flow to filter expressions.
func Record(f schema.FlowInstance) map[string]any {
	input := decode(f.Input)
	custom := decode(f.CustomStatus)
	return map[string]any{
		"instanceId":      f.InstanceID,
		"name":            f.Name,
		"status":          f.RuntimeStatus,
		"telemetry":       field(input, "telemetry"),
		"unitId":          firstString(field(custom, "unitId"), field(input, "unitId")),
		"createdTime":     f.CreatedTime,
		"lastUpdatedTime": f.LastUpdatedTime,
		"customStatus":    custom,
		"input":           input,
		"output":          decode(f.Output),
	}
}

func sortNewestFirst(flows []schema.FlowInstance) {
	slices.SortStableFunc(flows, func(a, b schema.FlowInstance) int {
		return b.Created().Compare(a.Created())
	})
}

func flowInput(unitID, telemetry string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"unitId": unitID, "telemetry": telemetry})
	return raw
}

func decode(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func field(v any, key string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func firstString(vals ...any) any {
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return nil
}
