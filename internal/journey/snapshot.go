package journey

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rendis/unitconsole/pkg/schema"
)

// FromSnapshot synthesizes DONE events for every stage present in a status snapshot.
//
// A stage counts as completed when output holds a key equal to the stage id whose
// value is a JSON object or array. The snapshot carries no per-stage times, so all
// synthesized events share lastUpdated. Output that is not a JSON object yields nil.
func FromSnapshot(instanceID string, output json.RawMessage, lastUpdated string) []schema.JourneyEvent {
	if len(output) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(output, &fields); err != nil {
		return nil
	}

	var events []schema.JourneyEvent
	for _, st := range schema.Stages() {
		raw, ok := fields[string(st)]
		if !ok || !structured(raw) {
			continue
		}
		events = append(events, schema.JourneyEvent{
			InstanceID: instanceID,
			Stage:      st,
			State:      schema.EventDone,
			Percent:    st.TargetPercent(),
			Message:    fmt.Sprintf("Step %s completed", st),
			Output:     append(json.RawMessage(nil), raw...),
			Timestamp:  lastUpdated,
		})
	}
	return events
}

// structured reports whether raw is a JSON object or array.
func structured(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}
