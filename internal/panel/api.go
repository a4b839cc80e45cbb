package panel

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rendis/unitconsole/internal/journey"
	"github.com/rendis/unitconsole/pkg/schema"
)

type sessionResponse struct {
	SessionID  string            `json:"session_id"`
	InstanceID string            `json:"instance_id,omitempty"`
	View       journey.ViewState `json:"view"`
}

// handleBeginJourney starts a journey in a new session and follows it live.
func (s *PanelServer) handleBeginJourney(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Telemetry string `json:"telemetry"`
		UnitID    string `json:"unit_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Telemetry == "" {
		writeError(w, http.StatusBadRequest, "telemetry is required")
		return
	}

	sess, err := s.deps.Console.NewSession()
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	instanceID, err := sess.Begin(r.Context(), body.Telemetry, body.UnitID)
	if err != nil {
		// The session stays registered so the failure can be read from its view.
		writeConsoleError(w, err, map[string]any{"session_id": sess.ID()})
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:  sess.ID(),
		InstanceID: instanceID,
		View:       sess.View(),
	})
}

// handleOpenSession attaches a new session to an existing instance.
func (s *PanelServer) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InstanceID string `json:"instance_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.InstanceID == "" {
		writeError(w, http.StatusBadRequest, "instance_id is required")
		return
	}

	sess, err := s.deps.Console.NewSession()
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	if err := sess.Open(r.Context(), body.InstanceID); err != nil {
		writeConsoleError(w, err, map[string]any{"session_id": sess.ID()})
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:  sess.ID(),
		InstanceID: body.InstanceID,
		View:       sess.View(),
	})
}

// handleListSessions lists the registered session ids.
func (s *PanelServer) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Console.SessionIDs()})
}

// handleSessionView returns the current view of a session.
func (s *PanelServer) handleSessionView(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Console.Session(r.PathValue("id"))
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	view := sess.View()
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:  sess.ID(),
		InstanceID: view.InstanceID,
		View:       view,
	})
}

// handleSelect pins the selection to a stage. An empty stage restores the
// default selection.
func (s *PanelServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Console.Session(r.PathValue("id"))
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}

	var body struct {
		Stage string `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if body.Stage == "" {
		sess.ClearSelection()
	} else {
		stage, ok := schema.ParseStage(body.Stage)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", body.Stage))
			return
		}
		if err := sess.Select(stage); err != nil {
			writeConsoleError(w, err, nil)
			return
		}
	}

	view := sess.View()
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:  sess.ID(),
		InstanceID: view.InstanceID,
		View:       view,
	})
}

// handleCloseSession closes a session and releases its live channel.
func (s *PanelServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Console.CloseSession(id); err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "session_id": id})
}

// handleUnitFlows lists a unit's journeys, optionally narrowed by ?filter=.
func (s *PanelServer) handleUnitFlows(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("id")
	flows, err := s.deps.Console.Flows(r.Context(), unitID, r.URL.Query().Get("filter"))
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unit_id": unitID, "flows": flows})
}
