// Package validation checks live channel payloads and status snapshots against
// JSON Schemas before they reach the reconciler.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/unitconsole/pkg/schema"
)

const (
	journeyUpdateSchemaURL = "https://unitconsole.dev/schemas/journey-update.json"
	flowStartedSchemaURL   = "https://unitconsole.dev/schemas/flow-started.json"
	flowCompletedSchemaURL = "https://unitconsole.dev/schemas/flow-completed.json"
	flowInstanceSchemaURL  = "https://unitconsole.dev/schemas/flow-instance.json"
)

// journeyUpdateSchemaJSON describes one journeyUpdate push. Extra fields are
// tolerated so the backend can add to the payload without breaking consoles.
var journeyUpdateSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["instanceId", "step", "state", "percent"],
  "properties": {
    "instanceId": { "type": "string", "minLength": 1 },
    "step": { "enum": ` + stageEnum() + ` },
    "state": { "enum": ["RUNNING", "DONE", "FAILED"] },
    "percent": { "type": "integer", "minimum": 0, "maximum": 100 },
    "message": { "type": ["string", "null"] },
    "output": {},
    "ts": { "type": ["string", "null"] }
  }
}`

const flowStartedSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["unitId", "instanceId"],
  "properties": {
    "unitId": { "type": "string", "minLength": 1 },
    "instanceId": { "type": "string", "minLength": 1 },
    "telemetry": { "type": ["string", "null"] },
    "startTime": { "type": ["string", "null"] },
    "status": { "type": ["string", "null"] }
  }
}`

const flowCompletedSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["unitId", "instanceId", "status"],
  "properties": {
    "unitId": { "type": "string", "minLength": 1 },
    "instanceId": { "type": "string", "minLength": 1 },
    "status": { "type": "string" }
  }
}`

// flowInstanceSchemaJSON describes one record of the flow status endpoint. Only the
// fields the console reads are constrained.
const flowInstanceSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "instanceId": { "type": ["string", "null"] },
    "runtimeStatus": { "type": ["string", "null"] },
    "createdTime": { "type": ["string", "null"] },
    "lastUpdatedTime": { "type": ["string", "null"] },
    "customStatus": {},
    "input": {},
    "output": {}
  }
}`

func stageEnum() string {
	b, err := json.Marshal(schema.Stages())
	if err != nil {
		panic(err)
	}
	return string(b)
}

// PayloadValidator validates and decodes wire payloads. It is safe for concurrent use.
type PayloadValidator struct {
	journeyUpdate *jsonschema.Schema
	flowStarted   *jsonschema.Schema
	flowCompleted *jsonschema.Schema
	flowInstance  *jsonschema.Schema
}

// NewPayloadValidator compiles the payload schemas.
func NewPayloadValidator() (*PayloadValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	resources := []struct{ url, doc string }{
		{journeyUpdateSchemaURL, journeyUpdateSchemaJSON},
		{flowStartedSchemaURL, flowStartedSchemaJSON},
		{flowCompletedSchemaURL, flowCompletedSchemaJSON},
		{flowInstanceSchemaURL, flowInstanceSchemaJSON},
	}
	for _, r := range resources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(r.doc))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", r.url, err)
		}
		if err := c.AddResource(r.url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", r.url, err)
		}
	}

	v := &PayloadValidator{}
	for _, target := range []struct {
		url string
		dst **jsonschema.Schema
	}{
		{journeyUpdateSchemaURL, &v.journeyUpdate},
		{flowStartedSchemaURL, &v.flowStarted},
		{flowCompletedSchemaURL, &v.flowCompleted},
		{flowInstanceSchemaURL, &v.flowInstance},
	} {
		compiled, err := c.Compile(target.url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", target.url, err)
		}
		*target.dst = compiled
	}
	return v, nil
}

// MustNewPayloadValidator is NewPayloadValidator for package wiring; the schemas
// are constants, so a failure is a programming error.
func MustNewPayloadValidator() *PayloadValidator {
	v, err := NewPayloadValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// DecodeJourneyEvent validates a journeyUpdate payload and decodes it.
// Failures carry ErrCodeMalformedPayload.
func (v *PayloadValidator) DecodeJourneyEvent(payload json.RawMessage) (schema.JourneyEvent, error) {
	var ev schema.JourneyEvent
	err := decode(v.journeyUpdate, payload, &ev)
	return ev, err
}

// DecodeFlowStarted validates and decodes a flowStarted payload.
func (v *PayloadValidator) DecodeFlowStarted(payload json.RawMessage) (schema.FlowStarted, error) {
	var fs schema.FlowStarted
	err := decode(v.flowStarted, payload, &fs)
	return fs, err
}

// DecodeFlowCompleted validates and decodes a flowCompleted payload.
func (v *PayloadValidator) DecodeFlowCompleted(payload json.RawMessage) (schema.FlowCompleted, error) {
	var fc schema.FlowCompleted
	err := decode(v.flowCompleted, payload, &fc)
	return fc, err
}

// DecodeFlowInstance validates and decodes one flow status record.
func (v *PayloadValidator) DecodeFlowInstance(payload json.RawMessage) (schema.FlowInstance, error) {
	var fi schema.FlowInstance
	err := decode(v.flowInstance, payload, &fi)
	return fi, err
}

func decode(s *jsonschema.Schema, payload json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return schema.NewError(schema.ErrCodeMalformedPayload, "empty payload")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return schema.NewError(schema.ErrCodeMalformedPayload, "payload is not valid JSON").WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return toConsoleError(err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return schema.NewError(schema.ErrCodeMalformedPayload, err.Error()).WithCause(err)
	}
	return nil
}

// toConsoleError converts a jsonschema.ValidationError into a ConsoleError that
// lists every violated location.
func toConsoleError(err error) *schema.ConsoleError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeMalformedPayload, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeMalformedPayload, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeMalformedPayload, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("payload failed with %d violations", len(violations))
	return schema.NewError(schema.ErrCodeMalformedPayload, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages with
// their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
