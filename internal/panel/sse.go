package panel

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rendis/unitconsole/internal/streaming"
)

// handleSSESession streams view updates of one session.
func (s *PanelServer) handleSSESession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Console.Session(r.PathValue("id"))
	if err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	s.serveSSE(w, r, streaming.EventFilter{SessionID: sess.ID()})
}

// handleSSEUnit streams history updates of one unit, starting a watcher on first use.
func (s *PanelServer) handleSSEUnit(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("id")
	if _, err := s.deps.Console.Watch(r.Context(), unitID); err != nil {
		writeConsoleError(w, err, nil)
		return
	}
	s.serveSSE(w, r, streaming.EventFilter{
		UnitID:     unitID,
		EventTypes: []string{streaming.EventFlowsUpdated},
	})
}

// serveSSE is the common SSE implementation.
func (s *PanelServer) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if s.deps.Hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
			if event.EventType == streaming.EventSessionClosed {
				return
			}
		}
	}
}
