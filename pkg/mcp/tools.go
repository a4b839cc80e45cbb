package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/unitconsole/internal/diagram"
	"github.com/rendis/unitconsole/internal/i18n"
	"github.com/rendis/unitconsole/internal/journey"
	"github.com/rendis/unitconsole/pkg/schema"
)

type sessionResult struct {
	SessionID  string            `json:"session_id"`
	InstanceID string            `json:"instance_id,omitempty"`
	Warning    string            `json:"warning,omitempty"`
	View       journey.ViewState `json:"view"`
}

func newSessionResult(sess *journey.Session) sessionResult {
	view := sess.View()
	return sessionResult{
		SessionID:  sess.ID(),
		InstanceID: view.InstanceID,
		Warning:    view.Warning,
		View:       view,
	}
}

// handleStart starts a journey in a new session.
func (s *ConsoleServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	telemetry, err := req.RequireString("telemetry")
	if err != nil || telemetry == "" {
		return mcp.NewToolResultError("telemetry is required"), nil
	}
	unitID := req.GetString("unit_id", "")

	sess, err := s.console.NewSession()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create session: %v", err)), nil
	}
	s.captureSession(ctx, sess.ID())

	if _, err := sess.Begin(ctx, telemetry, unitID); err != nil {
		s.sessions.Forget(sess.ID())
		_ = s.console.CloseSession(sess.ID())
		return mcp.NewToolResultError(fmt.Sprintf("journey start failed: %v", err)), nil
	}
	return marshalResult(newSessionResult(sess))
}

// handleOpen follows an existing journey instance in a new session.
func (s *ConsoleServer) handleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil || instanceID == "" {
		return mcp.NewToolResultError("instance_id is required"), nil
	}

	sess, err := s.console.NewSession()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create session: %v", err)), nil
	}
	s.captureSession(ctx, sess.ID())

	if err := sess.Open(ctx, instanceID); err != nil {
		s.sessions.Forget(sess.ID())
		_ = s.console.CloseSession(sess.ID())
		return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", err)), nil
	}
	return marshalResult(newSessionResult(sess))
}

// handleStatus returns the current view of a session.
func (s *ConsoleServer) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.lookup(req)
	if errResult != nil {
		return errResult, nil
	}
	return marshalResult(newSessionResult(sess))
}

// handleSelect pins or clears the selected stage.
func (s *ConsoleServer) handleSelect(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.lookup(req)
	if errResult != nil {
		return errResult, nil
	}

	raw := req.GetString("stage", "")
	if raw == "" {
		sess.ClearSelection()
		return marshalResult(newSessionResult(sess))
	}
	stage, ok := schema.ParseStage(raw)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown stage: %s", raw)), nil
	}
	if err := sess.Select(stage); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("select failed: %v", err)), nil
	}
	return marshalResult(newSessionResult(sess))
}

// handleClose closes a session.
func (s *ConsoleServer) handleClose(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	s.sessions.Forget(sessionID)
	if err := s.console.CloseSession(sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("close failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"ok":         true,
		"session_id": sessionID,
	})
}

// handleDiagram draws the session's pipeline in the requested format.
func (s *ConsoleServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}
	sess, errResult := s.lookup(req)
	if errResult != nil {
		return errResult, nil
	}

	model := diagram.Build(sess.View(), i18n.New(req.GetString("lang", "")))

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		encoded := base64.StdEncoding.EncodeToString(png)
		return mcp.NewToolResultImage(model.Title, encoded, "image/png"), nil
	}
}

// handleFlows lists a unit's journey history.
func (s *ConsoleServer) handleFlows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	unitID, err := req.RequireString("unit_id")
	if err != nil || unitID == "" {
		return mcp.NewToolResultError("unit_id is required"), nil
	}
	flows, err := s.console.Flows(ctx, unitID, req.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"unit_id": unitID, "flows": flows})
}

// --- Internal helpers ---

// lookup resolves the session_id argument.
func (s *ConsoleServer) lookup(req mcp.CallToolRequest) (*journey.Session, *mcp.CallToolResult) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return nil, mcp.NewToolResultError("session_id is required")
	}
	sess, err := s.console.Session(sessionID)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", err))
	}
	return sess, nil
}

// captureSession records the calling client as owner of journeyID and relays
// the session's view updates to it.
func (s *ConsoleServer) captureSession(ctx context.Context, journeyID string) {
	cs := server.ClientSessionFromContext(ctx)
	if cs == nil {
		return
	}
	s.sessions.Register(cs.SessionID(), journeyID)
	if s.hub != nil {
		forwardViews(s.ctx, s.hub, s.notifier, s.sessions, journeyID, s.logger)
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
