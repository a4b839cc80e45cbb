package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/unitconsole/internal/console"
	"github.com/rendis/unitconsole/internal/streaming"
)

// ConsoleServerDeps holds the dependencies for creating a ConsoleServer.
type ConsoleServerDeps struct {
	Console *console.Console
	// Hub enables view update notifications. Optional.
	Hub     streaming.EventHub
	Logger  *slog.Logger
	Version string
}

// ConsoleServer wraps an MCP server with journey console tool handlers.
type ConsoleServer struct {
	console   *console.Console
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  ClientNotifier
	mcpServer *server.MCPServer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConsoleServer creates a new ConsoleServer with all 7 tools registered.
func NewConsoleServer(deps ConsoleServerDeps) *ConsoleServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ConsoleServer{
		console:  deps.Console,
		hub:      deps.Hub,
		logger:   logger,
		sessions: NewSessionRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, cs server.ClientSession) {
		s.releaseClient(cs.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"unitconsole",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("unitconsole follows AI orchestration journeys of monitored units. Use journey.start to launch a journey from telemetry, journey.open to follow an existing instance, journey.status to read the reconciled stage view, journey.select to pin a stage, journey.diagram to draw the pipeline, journey.close when done, and unit.flows to list a unit's journey history."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ConsoleServer) Serve(ctx context.Context) error {
	defer s.Close()
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Close stops view forwarding and closes every journey session opened over MCP.
func (s *ConsoleServer) Close() {
	s.cancel()
	for _, id := range s.console.SessionIDs() {
		if _, owned := s.sessions.OwnerOf(id); owned {
			s.sessions.Forget(id)
			_ = s.console.CloseSession(id)
		}
	}
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ConsoleServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *ConsoleServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: openTool(), Handler: s.handleOpen},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: selectTool(), Handler: s.handleSelect},
		{Tool: closeTool(), Handler: s.handleClose},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: flowsTool(), Handler: s.handleFlows},
	}
}

// releaseClient closes the journey sessions a departing client owned.
func (s *ConsoleServer) releaseClient(clientID string) {
	for _, id := range s.sessions.Remove(clientID) {
		if err := s.console.CloseSession(id); err != nil {
			s.logger.Debug("release session", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}
}

// --- Tool definitions ---

func startTool() mcp.Tool {
	return mcp.NewTool("journey.start",
		mcp.WithDescription("Start an AI journey for unit telemetry and follow it live"),
		mcp.WithString("telemetry", mcp.Required(), mcp.Description("Telemetry text the journey reasons about")),
		mcp.WithString("unit_id", mcp.Description("ID of the unit the telemetry belongs to")),
	)
}

func openTool() mcp.Tool {
	return mcp.NewTool("journey.open",
		mcp.WithDescription("Open an existing journey instance from its status snapshot and live updates"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("ID of the journey instance")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("journey.status",
		mcp.WithDescription("Get the reconciled stage view of a journey session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID returned by journey.start or journey.open")),
	)
}

func selectTool() mcp.Tool {
	return mcp.NewTool("journey.select",
		mcp.WithDescription("Pin the selected event to a stage, or clear the selection"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the journey session")),
		mcp.WithString("stage",
			mcp.Enum("SENSING", "REASONING", "DECIDING", "ACTING", "ENABLEMENT", "REPORTING", "OPTIMIZATION"),
			mcp.Description("Stage to select; omit to restore the default selection"),
		),
	)
}

func closeTool() mcp.Tool {
	return mcp.NewTool("journey.close",
		mcp.WithDescription("Close a journey session and its live channel"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the journey session")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("journey.diagram",
		mcp.WithDescription("Draw the stage pipeline of a journey session. Returns ASCII art, Mermaid flowchart syntax, or a PNG image"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the journey session")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (PNG)"),
		),
		mcp.WithString("lang", mcp.Description("Language for status labels: en (default) or hr")),
	)
}

func flowsTool() mcp.Tool {
	return mcp.NewTool("unit.flows",
		mcp.WithDescription("List the journey history of a unit, newest first"),
		mcp.WithString("unit_id", mcp.Required(), mcp.Description("ID of the unit")),
		mcp.WithString("filter", mcp.Description(`Filter expression over flow records, e.g. status == "Failed", "cel: ...", or "jq: ..."`)),
	)
}
