package schema

import (
	"encoding/json"
	"time"
)

// FlowInstance is one journey run as reported by the status endpoint.
// Timestamps stay in their wire form; use Created/LastUpdated for comparisons.
type FlowInstance struct {
	InstanceID      string          `json:"instanceId"`
	Name            string          `json:"name,omitempty"`
	RuntimeStatus   string          `json:"runtimeStatus"`
	CustomStatus    json.RawMessage `json:"customStatus,omitempty"`
	CreatedTime     string          `json:"createdTime"`
	LastUpdatedTime string          `json:"lastUpdatedTime"`
	Input           json.RawMessage `json:"input,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
}

// Created parses CreatedTime. Unparseable values sort as the zero time.
func (f FlowInstance) Created() time.Time {
	return parseWireTime(f.CreatedTime)
}

// LastUpdated parses LastUpdatedTime. Unparseable values yield the zero time.
func (f FlowInstance) LastUpdated() time.Time {
	return parseWireTime(f.LastUpdatedTime)
}

// FlowStarted is pushed on a unit-scoped channel when a journey starts.
type FlowStarted struct {
	UnitID     string `json:"unitId"`
	InstanceID string `json:"instanceId"`
	Telemetry  string `json:"telemetry"`
	StartTime  string `json:"startTime"`
	Status     string `json:"status"`
}

// FlowCompleted is pushed on a unit-scoped channel when a journey ends.
type FlowCompleted struct {
	UnitID     string `json:"unitId"`
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"`
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
