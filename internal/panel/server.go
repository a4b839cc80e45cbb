package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/unitconsole/internal/console"
	"github.com/rendis/unitconsole/internal/streaming"
)

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Console *console.Console
	Hub     streaming.EventHub
	// Units backs the unit management routes. Optional.
	Units UnitDirectory
	// Gatherer backs /metrics. Defaults to the process registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// PanelServer serves the console's JSON API and event streams.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Journey sessions.
	mux.HandleFunc("POST /api/journeys", s.handleBeginJourney)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleOpenSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionView)
	mux.HandleFunc("POST /api/sessions/{id}/select", s.handleSelect)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("GET /api/sessions/{id}/diagram", s.handleDiagram)

	// Units and their history.
	mux.HandleFunc("GET /api/units", s.handleListUnits)
	mux.HandleFunc("GET /api/units/{id}", s.handleGetUnit)
	mux.HandleFunc("PUT /api/units/{id}", s.handleUpdateUnit)
	mux.HandleFunc("DELETE /api/units/{id}", s.handleDeleteUnit)
	mux.HandleFunc("GET /api/units/{id}/flows", s.handleUnitFlows)
	mux.HandleFunc("GET /api/profile", s.handleProfile)

	// SSE streams.
	mux.HandleFunc("GET /sse/sessions/{id}", s.handleSSESession)
	mux.HandleFunc("GET /sse/units/{id}", s.handleSSEUnit)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	return mux
}
