package schema

import "encoding/json"

// Live channel hub targets.
const (
	TargetJourneyUpdate = "journeyUpdate"
	TargetFlowStarted   = "flowStarted"
	TargetFlowCompleted = "flowCompleted"
)

// EventState is the state carried by a single journey event.
type EventState string

const (
	EventRunning EventState = "RUNNING"
	EventDone    EventState = "DONE"
	EventFailed  EventState = "FAILED"
)

// Terminal reports whether the state ends a stage.
func (s EventState) Terminal() bool {
	return s == EventDone || s == EventFailed
}

// StageStatus is the derived status of a pipeline stage.
type StageStatus string

const (
	StagePending StageStatus = "PENDING"
	StageRunning StageStatus = "RUNNING"
	StageDone    StageStatus = "DONE"
	StageFailed  StageStatus = "FAILED"
)

// ConnectionState tracks the live channel of a view session.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "DISCONNECTED"
	ConnectionConnecting   ConnectionState = "CONNECTING"
	ConnectionConnected    ConnectionState = "CONNECTED"
)

// JourneyEvent is one observed state transition of a stage within a workflow instance.
// Output is passed through untouched; the console never interprets it.
type JourneyEvent struct {
	InstanceID string          `json:"instanceId"`
	Stage      Stage           `json:"step"`
	State      EventState      `json:"state"`
	Percent    int             `json:"percent"`
	Message    string          `json:"message,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Timestamp  string          `json:"ts"`
}

// SameTransition reports whether two events carry the same (stage, state, percent) triple.
func (e JourneyEvent) SameTransition(o JourneyEvent) bool {
	return e.Stage == o.Stage && e.State == o.State && e.Percent == o.Percent
}
