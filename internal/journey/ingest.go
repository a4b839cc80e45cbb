// Package journey reconciles live and snapshot progress of one workflow
// instance into a single derived view.
package journey

import (
	"github.com/rendis/unitconsole/pkg/schema"
)

// Log is an append-only, ordered record of the journey events seen by one view.
// A Log is a value: Ingest never modifies its input and returns a new Log instead.
type Log struct {
	instanceID string
	events     []schema.JourneyEvent
}

// NewLog returns an empty log bound to instanceID. An empty instanceID leaves the
// log unbound until the first event arrives.
func NewLog(instanceID string) Log {
	return Log{instanceID: instanceID}
}

// InstanceID returns the workflow instance the log is bound to, or "".
func (l Log) InstanceID() string { return l.instanceID }

// Len returns the number of events in the log.
func (l Log) Len() int { return len(l.events) }

// Events returns a copy of the events in insertion order.
func (l Log) Events() []schema.JourneyEvent {
	out := make([]schema.JourneyEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Last returns the most recently appended event.
func (l Log) Last() (schema.JourneyEvent, bool) {
	if len(l.events) == 0 {
		return schema.JourneyEvent{}, false
	}
	return l.events[len(l.events)-1], true
}

// LatestFor returns the last event recorded for stage, whatever its state.
func (l Log) LatestFor(stage schema.Stage) (schema.JourneyEvent, bool) {
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Stage == stage {
			return l.events[i], true
		}
	}
	return schema.JourneyEvent{}, false
}

// Contains reports whether an event with the same (stage, state, percent) is recorded.
func (l Log) Contains(ev schema.JourneyEvent) bool {
	for _, e := range l.events {
		if e.SameTransition(ev) {
			return true
		}
	}
	return false
}

// Ingest appends ev to log and returns the resulting log.
//
// The second return value is false when ev duplicates a recorded (stage, state,
// percent) triple; the returned log is then the input log. An event for another
// instance is rejected with ErrCodeCrossInstance. An unbound empty log adopts the
// event's instance.
func Ingest(log Log, ev schema.JourneyEvent) (Log, bool, error) {
	bound := log.instanceID
	if bound == "" && len(log.events) == 0 {
		bound = ev.InstanceID
	}
	if ev.InstanceID != bound {
		return log, false, schema.NewErrorf(schema.ErrCodeCrossInstance,
			"event for instance %q cannot join log of instance %q", ev.InstanceID, bound).
			WithInstance(bound).
			WithDetails(map[string]any{"event_instance_id": ev.InstanceID, "stage": string(ev.Stage)})
	}

	if log.Contains(ev) {
		return log, false, nil
	}

	events := make([]schema.JourneyEvent, len(log.events), len(log.events)+1)
	copy(events, log.events)
	events = append(events, ev)
	return Log{instanceID: bound, events: events}, true, nil
}

// IngestAll folds events into log in order. It stops at the first rejected event.
// The count reports how many events were actually appended.
func IngestAll(log Log, events []schema.JourneyEvent) (Log, int, error) {
	appended := 0
	for _, ev := range events {
		next, ok, err := Ingest(log, ev)
		if err != nil {
			return log, appended, err
		}
		if ok {
			appended++
		}
		log = next
	}
	return log, appended, nil
}
