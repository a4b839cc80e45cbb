package validation

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/unitconsole/pkg/schema"
)

func newValidator(t *testing.T) *PayloadValidator {
	t.Helper()
	v, err := NewPayloadValidator()
	require.NoError(t, err)
	return v
}

func TestDecodeJourneyEvent_Valid(t *testing.T) {
	v := newValidator(t)

	ev, err := v.DecodeJourneyEvent(json.RawMessage(`{
		"instanceId": "inst-1",
		"step": "REASONING",
		"state": "RUNNING",
		"percent": 20,
		"message": "thinking",
		"output": {"plan": [1, 2]},
		"ts": "2026-03-01T10:00:00Z",
		"extra": true
	}`))
	require.NoError(t, err)
	assert.Equal(t, "inst-1", ev.InstanceID)
	assert.Equal(t, schema.StageReasoning, ev.Stage)
	assert.Equal(t, schema.EventRunning, ev.State)
	assert.Equal(t, 20, ev.Percent)
	assert.Equal(t, "thinking", ev.Message)
	assert.JSONEq(t, `{"plan":[1,2]}`, string(ev.Output))
	assert.Equal(t, "2026-03-01T10:00:00Z", ev.Timestamp)
}

func TestDecodeJourneyEvent_Malformed(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ``},
		{"not json", `{"instanceId":`},
		{"not an object", `["SENSING"]`},
		{"missing instance", `{"step":"SENSING","state":"DONE","percent":14}`},
		{"unknown stage", `{"instanceId":"i","step":"DREAMING","state":"DONE","percent":14}`},
		{"unknown state", `{"instanceId":"i","step":"SENSING","state":"PAUSED","percent":14}`},
		{"percent over 100", `{"instanceId":"i","step":"SENSING","state":"DONE","percent":140}`},
		{"percent not a number", `{"instanceId":"i","step":"SENSING","state":"DONE","percent":"14"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.DecodeJourneyEvent(json.RawMessage(tt.payload))
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeMalformedPayload, schema.Code(err))
		})
	}
}

func TestDecodeJourneyEvent_ListsViolations(t *testing.T) {
	v := newValidator(t)

	_, err := v.DecodeJourneyEvent(json.RawMessage(`{"instanceId":"","step":"SENSING","state":"NOPE","percent":-1}`))
	require.Error(t, err)

	var ce *schema.ConsoleError
	require.ErrorAs(t, err, &ce)
	violations, ok := ce.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 3)
	assert.Contains(t, ce.Message, "violations")
}

func TestDecodeFlowStarted(t *testing.T) {
	v := newValidator(t)

	fs, err := v.DecodeFlowStarted(json.RawMessage(`{"unitId":"u-1","instanceId":"i-9","telemetry":"temp high","startTime":"2026-03-01T10:00:00Z","status":"Running"}`))
	require.NoError(t, err)
	assert.Equal(t, "u-1", fs.UnitID)
	assert.Equal(t, "i-9", fs.InstanceID)
	assert.Equal(t, "temp high", fs.Telemetry)

	_, err = v.DecodeFlowStarted(json.RawMessage(`{"unitId":"u-1"}`))
	assert.Equal(t, schema.ErrCodeMalformedPayload, schema.Code(err))
}

func TestDecodeFlowCompleted(t *testing.T) {
	v := newValidator(t)

	fc, err := v.DecodeFlowCompleted(json.RawMessage(`{"unitId":"u-1","instanceId":"i-9","status":"Completed"}`))
	require.NoError(t, err)
	assert.Equal(t, "Completed", fc.Status)

	_, err = v.DecodeFlowCompleted(json.RawMessage(`{"unitId":"u-1","instanceId":"i-9"}`))
	assert.Equal(t, schema.ErrCodeMalformedPayload, schema.Code(err))
}

func TestDecodeFlowInstance(t *testing.T) {
	v := newValidator(t)

	fi, err := v.DecodeFlowInstance(json.RawMessage(`{
		"instanceId": "i-1",
		"runtimeStatus": "Running",
		"createdTime": "2026-03-01T10:00:00Z",
		"lastUpdatedTime": "2026-03-01T10:05:00Z",
		"customStatus": {"unitId": "u-1"},
		"output": {"SENSING": {}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Running", fi.RuntimeStatus)
	assert.JSONEq(t, `{"SENSING":{}}`, string(fi.Output))

	_, err = v.DecodeFlowInstance(json.RawMessage(`{"instanceId": 7}`))
	assert.Equal(t, schema.ErrCodeMalformedPayload, schema.Code(err))
}

func TestPayloadValidator_Concurrent(t *testing.T) {
	v := newValidator(t)
	payload := json.RawMessage(`{"instanceId":"i","step":"ACTING","state":"FAILED","percent":57}`)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := v.DecodeJourneyEvent(payload)
			assert.NoError(t, err)
			assert.Equal(t, schema.StageActing, ev.Stage)
		}()
	}
	wg.Wait()
}
